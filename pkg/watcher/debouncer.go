package watcher

import (
	"context"
	"time"

	"github.com/ritzau/angioflow/pkg/logging"
)

// Debouncer merges change events that arrive within a quiet period, so an
// editor saving several times in a row restarts the run once. maxWait bounds
// how long a steady stream of events can postpone the flush.
type Debouncer struct {
	input       <-chan ChangeEvent
	output      chan ChangeEvent
	quietPeriod time.Duration
	maxWait     time.Duration
}

// NewDebouncer reads from input. Call Start to begin merging.
func NewDebouncer(input <-chan ChangeEvent, quietPeriod, maxWait time.Duration) *Debouncer {
	return &Debouncer{
		input:       input,
		output:      make(chan ChangeEvent, 4),
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
	}
}

// Start merges events in a goroutine until ctx ends or input closes.
func (d *Debouncer) Start(ctx context.Context) {
	go d.run(ctx)
}

func (d *Debouncer) run(ctx context.Context) {
	defer close(d.output)

	var (
		quiet   <-chan time.Time
		limit   <-chan time.Time
		pending *ChangeEvent
		count   int
	)

	flush := func() {
		quiet, limit = nil, nil
		if pending == nil {
			return
		}
		logging.Debug("flushing accumulated events", "count", count, "type", pending.Type.String())
		pending.Timestamp = time.Now()
		select {
		case d.output <- *pending:
		case <-ctx.Done():
		}
		pending, count = nil, 0
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-d.input:
			if !ok {
				flush()
				return
			}
			if pending == nil {
				pending = &ChangeEvent{}
				limit = time.After(d.maxWait)
			}
			// the latest type wins: a remove followed by a write is a write
			pending.Type = event.Type
			pending.Paths = append(pending.Paths, event.Paths...)
			count++
			quiet = time.After(d.quietPeriod)

		case <-quiet:
			flush()

		case <-limit:
			flush()
		}
	}
}

// Output delivers one merged event per burst. It closes when the debouncer stops.
func (d *Debouncer) Output() <-chan ChangeEvent {
	return d.output
}
