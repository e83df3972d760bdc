// Package app wires the reconciliation engine to its collaborators: the
// account service client, the notification sink, and lifecycle management.
// All dependencies are injected at construction; nothing here reaches for
// process-global state.
package app

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/upvotelabs/upvote-client/internal/api"
	"github.com/upvotelabs/upvote-client/internal/config"
	"github.com/upvotelabs/upvote-client/internal/engine"
	"github.com/upvotelabs/upvote-client/internal/notify"
	"github.com/upvotelabs/upvote-client/internal/system"
	"github.com/upvotelabs/upvote-client/internal/track"
	"github.com/upvotelabs/upvote-client/pkg/logger"
)

// Options configures an Application. API and Notifier may be nil: the API
// client is then built from the config, and notifications fall back to the
// log sink.
type Options struct {
	Config   config.Config
	API      *api.Client
	Notifier notify.Notifier
	Log      *logger.Logger
}

// Application owns the order session, the per-payment sessions, and their
// shared collaborators.
type Application struct {
	manager    *system.Manager
	cfg        config.Config
	log        *logger.Logger
	api        *api.Client
	dispatcher *notify.Dispatcher
	limiter    *rate.Limiter

	Orders *engine.Session

	mu          sync.Mutex
	payments    map[string]*engine.Session
	paymentShot *track.SnapshotStore
	runCtx      context.Context
	started     bool
}

// New builds a fully wired application.
func New(opts Options) (*Application, error) {
	log := opts.Log
	if log == nil {
		log = logger.NewDefault("app")
	}

	client := opts.API
	if client == nil {
		var err error
		client, err = api.NewClient(api.Config{
			BaseURL: opts.Config.API.BaseURL,
			Tokens:  api.StaticToken(opts.Config.API.Token),
			Timeout: opts.Config.APITimeout(),
			Log:     log,
		})
		if err != nil {
			return nil, fmt.Errorf("build api client: %w", err)
		}
	}

	dispatcher := notify.NewDispatcher(opts.Notifier, client, log)

	var limiter *rate.Limiter
	if rps := opts.Config.Poll.RequestsPerSecond; rps > 0 {
		burst := opts.Config.Poll.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}

	orders, err := engine.NewSession(engine.SessionConfig{
		Kind:         track.KindOrder,
		Interval:     opts.Config.OrderInterval(),
		FetchTimeout: opts.Config.FetchTimeout(),
		Fetcher:      engine.OrderFetcher(client),
		Handler:      dispatcher,
		Limiter:      limiter,
		Log:          log,
	})
	if err != nil {
		return nil, fmt.Errorf("build order session: %w", err)
	}

	manager := system.NewManager()
	if err := manager.Register(orders); err != nil {
		return nil, fmt.Errorf("register order session: %w", err)
	}

	return &Application{
		manager:     manager,
		cfg:         opts.Config,
		log:         log,
		api:         client,
		dispatcher:  dispatcher,
		limiter:     limiter,
		Orders:      orders,
		payments:    make(map[string]*engine.Session),
		paymentShot: track.NewSnapshotStore(),
	}, nil
}

// API exposes the account service client for callers that need direct reads.
func (a *Application) API() *api.Client { return a.api }

// Start begins the managed sessions.
func (a *Application) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.mu.Lock()
	a.runCtx = ctx
	a.started = true
	a.mu.Unlock()
	return a.manager.Start(ctx)
}

// Stop halts every payment session and then stops the managed services,
// bounded by ctx.
func (a *Application) Stop(ctx context.Context) error {
	a.mu.Lock()
	a.started = false
	sessions := make([]*engine.Session, 0, len(a.payments))
	for _, session := range a.payments {
		sessions = append(sessions, session)
	}
	a.mu.Unlock()

	for _, session := range sessions {
		if err := session.Stop(ctx); err != nil {
			a.log.WithError(err).Warn("payment session stop timed out")
		}
	}
	return a.manager.Stop(ctx)
}

// SeedOrders loads the caller's orders and starts tracking the ones still in
// flight. The fetched statuses prime the snapshot store without dispatching:
// a freshly rendered list is the baseline, not a transition.
func (a *Application) SeedOrders(ctx context.Context) error {
	orders, err := a.api.ListOrders(ctx)
	if err != nil {
		return fmt.Errorf("seed orders: %w", err)
	}

	store := a.Orders.Store()
	tracked := 0
	for _, order := range orders {
		status, ok := track.ParseStatus(order.Status)
		if !ok {
			a.log.WithField("order_id", order.ID).
				Warnf("ignoring order with unknown status %q", order.Status)
			continue
		}
		store.Upsert(track.Item{
			ID:           order.ID,
			Kind:         track.KindOrder,
			Status:       status,
			ErrorMessage: order.ErrorMessage,
		})
		if !status.Terminal() {
			a.Orders.Track(order.ID)
			tracked++
		}
	}
	a.log.Infof("seeded %d orders, tracking %d", len(orders), tracked)
	return nil
}

// TrackOrder adds a newly created order to the order session.
func (a *Application) TrackOrder(id string) {
	a.Orders.Track(id)
}

// WatchPayment starts (or returns) the polling session for one pending
// payment. Payment sessions share a snapshot store but each payment gets its
// own timer, running on a slower interval than the order session.
func (a *Application) WatchPayment(id string) (*engine.Session, error) {
	if id == "" {
		return nil, fmt.Errorf("payment id required")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if session, ok := a.payments[id]; ok {
		return session, nil
	}

	session, err := engine.NewSession(engine.SessionConfig{
		Kind:         track.KindPayment,
		Interval:     a.cfg.PaymentInterval(),
		FetchTimeout: a.cfg.FetchTimeout(),
		Fetcher:      engine.PaymentFetcher(a.api),
		Store:        a.paymentShot,
		Handler:      a.dispatcher,
		Limiter:      a.limiter,
		Log:          a.log,
	})
	if err != nil {
		return nil, fmt.Errorf("build payment session: %w", err)
	}
	session.Track(id)

	if a.started {
		if err := session.Start(a.runCtx); err != nil {
			return nil, fmt.Errorf("start payment session: %w", err)
		}
	}
	a.payments[id] = session
	return session, nil
}

// CancelPayment asks the service to cancel a pending payment and tears the
// session down without waiting for in-flight fetches.
func (a *Application) CancelPayment(ctx context.Context, id string) (bool, error) {
	ok, err := a.api.CancelPayment(ctx, id)
	if err != nil {
		return false, err
	}

	a.mu.Lock()
	session := a.payments[id]
	delete(a.payments, id)
	a.mu.Unlock()

	if session != nil {
		session.Halt()
	}
	return ok, nil
}

// Status is a point-in-time dump of engine state for the ops endpoint.
type Status struct {
	OrderSession  string       `json:"order_session"`
	Orders        []track.Item `json:"orders"`
	PaymentStates []track.Item `json:"payments"`
}

// Status reports the current snapshots and scheduler state.
func (a *Application) Status() Status {
	return Status{
		OrderSession:  string(a.Orders.State()),
		Orders:        a.Orders.Store().Items(),
		PaymentStates: a.paymentShot.Items(),
	}
}
