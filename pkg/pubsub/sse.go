package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/ritzau/angioflow/pkg/logging"
)

// subscriberBuffer is the per-subscriber channel capacity. Snapshots are
// large, so a slow client drops events instead of stalling the run.
const subscriberBuffer = 64

// TopicConfig sets how many events of a topic are kept for late
// subscribers and whether all of them or only the newest are replayed.
type TopicConfig struct {
	BufferSize int
	ReplayAll  bool
}

// topicState is everything the publisher tracks for one topic.
type topicState struct {
	config  TopicConfig
	recent  []Event
	seq     int
	dropped int
	subs    map[*sseSubscription]struct{}
}

func (t *topicState) replay() []Event {
	if !t.config.ReplayAll && len(t.recent) > 1 {
		return t.recent[len(t.recent)-1:]
	}
	return t.recent
}

func (t *topicState) remember(e Event) {
	size := t.config.BufferSize
	if size <= 0 {
		return
	}
	t.recent = append(t.recent, e)
	if len(t.recent) > size {
		t.recent = t.recent[len(t.recent)-size:]
	}
}

// SSEPublisher fans run events out to SSE subscribers.
type SSEPublisher struct {
	mu     sync.RWMutex
	topics map[string]*topicState
	closed bool
}

// NewSSEPublisher creates a publisher with the run topics configured: every
// status event of the current run is replayed, snapshots only the latest.
func NewSSEPublisher() *SSEPublisher {
	p := &SSEPublisher{topics: make(map[string]*topicState)}
	p.ConfigureTopic(TopicRunStatus, TopicConfig{BufferSize: 32, ReplayAll: true})
	p.ConfigureTopic(TopicSnapshot, TopicConfig{BufferSize: 1})
	return p
}

// topic returns the state of name, creating it unconfigured. Callers hold mu.
func (p *SSEPublisher) topic(name string) *topicState {
	t, ok := p.topics[name]
	if !ok {
		t = &topicState{subs: make(map[*sseSubscription]struct{})}
		p.topics[name] = t
	}
	return t
}

func (p *SSEPublisher) ConfigureTopic(name string, config TopicConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic(name).config = config
}

// Subscribe registers a subscriber on topic and replays its buffered
// events. Cancelling ctx ends the subscription.
func (p *SSEPublisher) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	t := p.topic(topic)
	sub := &sseSubscription{
		topic:     topic,
		events:    make(chan Event, subscriberBuffer),
		publisher: p,
	}
	t.subs[sub] = struct{}{}

	// sent under the lock so that no newer event overtakes the replay
	replay := t.replay()
	for _, e := range replay {
		select {
		case sub.events <- e:
		default:
			logging.Warn("replay dropped", "topic", topic, "version", e.Version)
		}
	}
	p.mu.Unlock()

	if len(replay) > 0 {
		logging.Debug("replayed events", "topic", topic, "count", len(replay))
	}

	go func() {
		<-ctx.Done()
		sub.Close()
	}()
	return sub, nil
}

// Publish encodes data and offers it to every subscriber of topic. Full
// subscribers miss the event.
func (p *SSEPublisher) Publish(topic string, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	t := p.topic(topic)
	t.seq++
	e := Event{Topic: topic, Type: eventType, Data: payload, Version: t.seq}
	t.remember(e)

	for sub := range t.subs {
		select {
		case sub.events <- e:
		default:
			t.dropped++
			logging.Debug("subscriber full, event dropped", "topic", topic, "version", e.Version)
		}
	}
	return nil
}

// Reset forgets the buffered events of topic, used when a new run starts.
// Sequence numbers keep counting.
func (p *SSEPublisher) Reset(topic string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.topics[topic]; ok {
		t.recent = nil
	}
}

// Dropped returns how many events of topic were dropped for full subscribers.
func (p *SSEPublisher) Dropped(topic string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if t, ok := p.topics[topic]; ok {
		return t.dropped
	}
	return 0
}

// Close ends every subscription's channel. Later calls are no-ops.
func (p *SSEPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	for _, t := range p.topics {
		for sub := range t.subs {
			close(sub.events)
		}
		t.subs = make(map[*sseSubscription]struct{})
	}
	return nil
}

func (p *SSEPublisher) unsubscribe(sub *sseSubscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.topics[sub.topic]; ok {
		delete(t.subs, sub)
	}
}

type sseSubscription struct {
	topic     string
	events    chan Event
	publisher *SSEPublisher

	once sync.Once
}

func (s *sseSubscription) Topic() string { return s.topic }

func (s *sseSubscription) Events() <-chan Event { return s.events }

func (s *sseSubscription) Close() error {
	s.once.Do(func() { s.publisher.unsubscribe(s) })
	return nil
}

// WriteSSE writes event as one SSE frame: "event: <type>" then
// "data: <json>" and a blank line.
func WriteSSE(w io.Writer, event Event) error {
	frame, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, frame)
	return err
}
