package docwatch

import (
	"context"
	"time"

	"docchat/src/core/document"
	"docchat/src/infrastructure/log"
)

const DefaultInterval = 2 * time.Second

// StatusEvent is one observed lifecycle transition
type StatusEvent struct {
	Status document.Status `json:"status"`
	Reason string          `json:"reason,omitempty"`
}

// Watcher streams a document's status transitions to subscribers. It polls
// the status store, which works across the server/worker process split; the
// store's forward-only writes guarantee events arrive in lifecycle order.
type Watcher struct {
	docs     document.StatusStore
	interval time.Duration
}

func NewWatcher(docs document.StatusStore, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Watcher{
		docs:     docs,
		interval: interval,
	}
}

// Watch subscribes to a document's transitions. The first event carries the
// status at subscribe time, so a late subscriber to a finished document
// immediately sees the terminal status. The channel closes after a terminal
// event or when ctx is cancelled. Each subscription is independent.
func (w *Watcher) Watch(ctx context.Context, docID string) (<-chan StatusEvent, error) {
	doc, err := w.docs.Get(ctx, docID)
	if err != nil {
		return nil, err
	}

	events := make(chan StatusEvent, 1)

	go func() {
		defer close(events)

		last := doc.Status
		if !w.send(ctx, events, StatusEvent{Status: doc.Status, Reason: doc.FailureReason}) {
			return
		}
		if last.IsTerminal() {
			return
		}

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			current, err := w.docs.Get(ctx, docID)
			if err != nil {
				log.Error(err, "failed to poll document status", "doc_id", docID)
				continue
			}

			if current.Status == last {
				continue
			}

			last = current.Status
			if !w.send(ctx, events, StatusEvent{Status: current.Status, Reason: current.FailureReason}) {
				return
			}
			if last.IsTerminal() {
				return
			}
		}
	}()

	return events, nil
}

func (w *Watcher) send(ctx context.Context, events chan<- StatusEvent, ev StatusEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
