// Package pubsub streams run progress to web clients as server-sent events.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
)

// Topics published during a run.
const (
	TopicRunStatus = "run_status"
	TopicSnapshot  = "snapshot"
)

// ErrClosed is returned by a publisher after Close.
var ErrClosed = errors.New("publisher is closed")

// Event represents a pub/sub event
type Event struct {
	Topic   string          `json:"topic"`   // TopicRunStatus or TopicSnapshot
	Type    string          `json:"type"`    // e.g. "started", "remodeled", "finished", "step"
	Data    json.RawMessage `json:"data"`    // Event payload
	Version int             `json:"version"` // per-topic sequence number
}

// Subscription represents a client subscription to a topic
type Subscription interface {
	Topic() string
	Events() <-chan Event
	Close() error
}

// Publisher manages pub/sub subscriptions and event publishing
type Publisher interface {
	// Subscribe creates a new subscription to a topic.
	// Context cancellation closes the subscription.
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends an event to all subscribers of a topic
	Publish(topic string, eventType string, data any) error

	Close() error
}

// RunStatus is the payload of TopicRunStatus events.
type RunStatus struct {
	RunID   string  `json:"run_id"`
	State   string  `json:"state"` // idle, running, completed, cancelled, aborted, failed
	Message string  `json:"message,omitempty"`
	Step    int     `json:"step"`
	Time    float64 `json:"time"`
	Total   float64 `json:"total"` // run duration in macro time units
	Tips    int     `json:"tips"`
	Vessels int     `json:"vessels"`
}
