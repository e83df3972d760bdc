// Package track holds the domain model for items whose server-side
// completion the client is waiting on, and the snapshot store the reconciler
// diffs fetched state against.
package track

import (
	"strings"
	"time"
)

// Kind distinguishes the two tracked collections.
type Kind string

const (
	KindOrder   Kind = "order"
	KindPayment Kind = "payment"
)

// Status is the client-side lifecycle state of a tracked item. The wire
// values match the account service API.
type Status string

const (
	// StatusUnknown is the implicit state of an item before its first
	// successful fetch. It is never a wire value.
	StatusUnknown Status = ""

	StatusPending    Status = "pending"
	StatusProcessing Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusExpired    Status = "expired"
)

// Terminal reports whether no further transition is expected from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// ParseStatus validates a wire status string. Unrecognized values return
// false so callers can treat them as "no update" rather than corrupting the
// snapshot.
func ParseStatus(raw string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusPending:
		return StatusPending, true
	case StatusProcessing:
		return StatusProcessing, true
	case StatusCompleted:
		return StatusCompleted, true
	case StatusFailed:
		return StatusFailed, true
	case StatusCancelled:
		return StatusCancelled, true
	case StatusExpired:
		return StatusExpired, true
	}
	return StatusUnknown, false
}

// providerStatuses maps crypto gateway statuses onto client statuses, so the
// engine only ever sees client statuses regardless of which upstream the
// account service proxied.
var providerStatuses = map[string]Status{
	"paid":                 StatusCompleted,
	"paid_over":            StatusCompleted,
	"process":              StatusPending,
	"confirm_check":        StatusPending,
	"check":                StatusPending,
	"wrong_amount_waiting": StatusPending,
	"wrong_amount":         StatusFailed,
	"fail":                 StatusFailed,
	"system_fail":          StatusFailed,
	"refund_fail":          StatusFailed,
	"cancel":               StatusCancelled,
	"expired":              StatusExpired,
}

// NormalizeProviderStatus resolves a raw status that may be either a client
// status or a gateway pass-through value.
func NormalizeProviderStatus(raw string) (Status, bool) {
	if status, ok := ParseStatus(raw); ok {
		return status, true
	}
	if status, ok := providerStatuses[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return status, true
	}
	return StatusUnknown, false
}

// Item is the unit of reconciliation: the last-known state of one order or
// payment.
type Item struct {
	ID             string
	Kind           Kind
	Status         Status
	ErrorMessage   string
	LastObservedAt time.Time
}

// Terminal reports whether the item has reached a state that ends tracking.
func (i Item) Terminal() bool { return i.Status.Terminal() }

// StatusResult is one fetched observation, before it is merged into the
// snapshot store.
type StatusResult struct {
	Status       Status
	ErrorMessage string
}

// TransitionEvent records one detected, de-duplicated change of an item's
// status or error detail.
type TransitionEvent struct {
	ItemID         string
	Kind           Kind
	PreviousStatus Status
	NewStatus      Status
	ErrorMessage   string
}

// Terminal reports whether the event moved the item into a terminal state.
func (e TransitionEvent) Terminal() bool { return e.NewStatus.Terminal() }
