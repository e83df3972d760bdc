// Package notify turns transition events into user-visible side effects:
// toasts through a pluggable sink and balance refreshes after completed
// work. Dispatch is best-effort; failures are logged, never propagated back
// into the polling path.
package notify

import (
	"context"
	"fmt"

	"github.com/upvotelabs/upvote-client/internal/metrics"
	"github.com/upvotelabs/upvote-client/internal/track"
	"github.com/upvotelabs/upvote-client/pkg/logger"
)

// Variant classifies a notification for presentation.
type Variant string

const (
	VariantSuccess Variant = "success"
	VariantError   Variant = "error"
	VariantInfo    Variant = "info"
	VariantStatus  Variant = "status"
)

// Notification is the payload handed to the sink.
type Notification struct {
	Title       string
	Description string
	Variant     Variant
}

// Notifier is the non-blocking, best-effort notification sink.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	if f == nil {
		return nil
	}
	return f(ctx, n)
}

// LogNotifier writes notifications to the log. It is the default sink when
// no UI is attached.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.NewDefault("notify")
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.log.WithField("variant", string(note.Variant)).
		Infof("%s: %s", note.Title, note.Description)
	return nil
}

// AccountRefresher re-reads the user profile so displayed balance and stats
// reflect completed work.
type AccountRefresher interface {
	RefreshProfile(ctx context.Context) error
}

// Dispatcher consumes transition event batches and fires exactly one
// user-visible effect per transition, never per poll tick.
type Dispatcher struct {
	notifier Notifier
	accounts AccountRefresher
	log      *logger.Logger
}

// NewDispatcher builds a dispatcher. A nil notifier falls back to the log
// sink.
func NewDispatcher(notifier Notifier, accounts AccountRefresher, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDefault("notify-dispatcher")
	}
	if notifier == nil {
		notifier = NewLogNotifier(log)
	}
	return &Dispatcher{
		notifier: notifier,
		accounts: accounts,
		log:      log,
	}
}

// HandleBatch dispatches the side effects for one reconciler pass. Terminal
// transitions always notify individually; several progress transitions in
// the same order cycle collapse into a single notification so a busy list
// does not spray toasts. Any completed transition in the batch triggers one
// balance refresh.
func (d *Dispatcher) HandleBatch(ctx context.Context, kind track.Kind, events []track.TransitionEvent) {
	if len(events) == 0 {
		return
	}

	var progress []track.TransitionEvent
	completed := false
	for _, event := range events {
		if !event.Terminal() {
			progress = append(progress, event)
			continue
		}
		if event.NewStatus == track.StatusCompleted {
			completed = true
		}
		d.send(ctx, terminalNotification(kind, event))
	}

	if completed {
		d.refreshBalance(ctx)
	}

	switch {
	case len(progress) == 0:
	case kind == track.KindOrder && len(progress) > 1:
		d.send(ctx, Notification{
			Title:       "Orders updated",
			Description: fmt.Sprintf("%d orders changed status", len(progress)),
			Variant:     VariantStatus,
		})
	default:
		for _, event := range progress {
			d.send(ctx, progressNotification(kind, event))
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, n Notification) {
	if err := d.notifier.Notify(ctx, n); err != nil {
		d.log.WithError(err).WithField("title", n.Title).Warn("notification dropped")
		return
	}
	metrics.RecordNotification(string(n.Variant))
}

func (d *Dispatcher) refreshBalance(ctx context.Context) {
	if d.accounts == nil {
		return
	}
	if err := d.accounts.RefreshProfile(ctx); err != nil {
		d.log.WithError(err).Warn("balance refresh failed")
	}
}

func terminalNotification(kind track.Kind, event track.TransitionEvent) Notification {
	subject := subjectLabel(kind)
	switch event.NewStatus {
	case track.StatusCompleted:
		return Notification{
			Title:       subject + " completed",
			Description: fmt.Sprintf("%s %s finished successfully", subject, event.ItemID),
			Variant:     VariantSuccess,
		}
	case track.StatusFailed:
		description := fmt.Sprintf("%s %s failed", subject, event.ItemID)
		if event.ErrorMessage != "" {
			description += ": " + event.ErrorMessage
		}
		return Notification{
			Title:       subject + " failed",
			Description: description,
			Variant:     VariantError,
		}
	case track.StatusExpired:
		return Notification{
			Title:       subject + " expired",
			Description: fmt.Sprintf("%s %s expired before confirmation", subject, event.ItemID),
			Variant:     VariantInfo,
		}
	default: // cancelled
		return Notification{
			Title:       subject + " cancelled",
			Description: fmt.Sprintf("%s %s was cancelled", subject, event.ItemID),
			Variant:     VariantInfo,
		}
	}
}

func progressNotification(kind track.Kind, event track.TransitionEvent) Notification {
	subject := subjectLabel(kind)
	return Notification{
		Title:       subject + " status updated",
		Description: fmt.Sprintf("%s %s is now %s", subject, event.ItemID, event.NewStatus),
		Variant:     VariantStatus,
	}
}

func subjectLabel(kind track.Kind) string {
	if kind == track.KindPayment {
		return "Payment"
	}
	return "Order"
}
