package engine

import (
	"context"

	"github.com/upvotelabs/upvote-client/internal/metrics"
	"github.com/upvotelabs/upvote-client/internal/track"
	"github.com/upvotelabs/upvote-client/pkg/logger"
)

// TransitionHandler consumes the transition events of one reconciler pass.
type TransitionHandler interface {
	HandleBatch(ctx context.Context, kind track.Kind, events []track.TransitionEvent)
}

// TransitionHandlerFunc adapts a function to the TransitionHandler interface.
type TransitionHandlerFunc func(ctx context.Context, kind track.Kind, events []track.TransitionEvent)

func (f TransitionHandlerFunc) HandleBatch(ctx context.Context, kind track.Kind, events []track.TransitionEvent) {
	if f == nil {
		return
	}
	f(ctx, kind, events)
}

// FetchResult is one settled per-item fetch of a poll cycle.
type FetchResult struct {
	ID     string
	Result track.StatusResult
	Err    error
}

// Reconciler merges fetch results into the snapshot store and emits the
// transitions that actually happened. Fetch failures retain the prior
// snapshot; the next scheduled cycle is the retry mechanism.
type Reconciler struct {
	kind    track.Kind
	store   *track.SnapshotStore
	handler TransitionHandler
	log     *logger.Logger
}

// NewReconciler builds a reconciler for one tracked collection.
func NewReconciler(kind track.Kind, store *track.SnapshotStore, handler TransitionHandler, log *logger.Logger) *Reconciler {
	if log == nil {
		log = logger.NewDefault(string(kind) + "-reconciler")
	}
	return &Reconciler{
		kind:    kind,
		store:   store,
		handler: handler,
		log:     log,
	}
}

// Apply upserts results in completion order, collects the real transitions,
// and hands the batch to the handler. Results carrying an error are logged
// and skipped without mutating the store.
func (r *Reconciler) Apply(ctx context.Context, results []FetchResult) []track.TransitionEvent {
	var events []track.TransitionEvent
	for _, result := range results {
		if result.Err != nil {
			metrics.RecordFetchFailure(string(r.kind))
			r.log.WithError(result.Err).
				WithField("item_id", result.ID).
				Warn("status fetch failed; keeping prior snapshot")
			continue
		}

		event, changed := r.store.Upsert(track.Item{
			ID:           result.ID,
			Kind:         r.kind,
			Status:       result.Result.Status,
			ErrorMessage: result.Result.ErrorMessage,
		})
		if !changed {
			continue
		}
		metrics.RecordTransition(string(r.kind), string(event.NewStatus))
		events = append(events, event)
	}

	if len(events) > 0 && r.handler != nil {
		r.handler.HandleBatch(ctx, r.kind, events)
	}
	return events
}
