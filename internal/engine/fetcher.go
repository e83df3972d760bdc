// Package engine implements the status reconciliation loop: poll sessions
// that fan out status fetches for tracked items, diff the results against
// the snapshot store, and hand real transitions to the dispatcher.
package engine

import (
	"context"

	"github.com/upvotelabs/upvote-client/internal/api"
	"github.com/upvotelabs/upvote-client/internal/track"
)

// Fetcher retrieves the current status of one tracked item. Implementations
// perform a single bounded round-trip.
type Fetcher interface {
	Fetch(ctx context.Context, id string) (track.StatusResult, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, id string) (track.StatusResult, error)

func (f FetcherFunc) Fetch(ctx context.Context, id string) (track.StatusResult, error) {
	if f == nil {
		return track.StatusResult{}, nil
	}
	return f(ctx, id)
}

// OrderFetcher binds the order status endpoint to the Fetcher contract.
func OrderFetcher(client *api.Client) Fetcher {
	return FetcherFunc(func(ctx context.Context, id string) (track.StatusResult, error) {
		return client.OrderStatus(ctx, id)
	})
}

// PaymentFetcher binds the payment status endpoint to the Fetcher contract.
func PaymentFetcher(client *api.Client) Fetcher {
	return FetcherFunc(func(ctx context.Context, id string) (track.StatusResult, error) {
		return client.PaymentStatus(ctx, id)
	})
}
