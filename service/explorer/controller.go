package explorer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/brojonat/txexplorer/client"
)

// State is a snapshot of everything the controller shows. Route is the
// requested route; Page is what is visible, which is NotFound when the
// route could not be resolved.
type State struct {
	Route      Route
	Page       Page
	Loading    bool
	Status     map[string]client.NetworkStatus
	StatusErr  error
	Rates      client.Rates
	Generation uint64
}

// Controller is the view-state machine. It owns the navigation history
// and the displayed page; results of a navigation are only applied while
// that navigation is still the newest one.
type Controller struct {
	resolver *Resolver
	history  History
	feed     *Feed
	logger   *slog.Logger
	refresh  time.Duration

	mu         sync.Mutex
	state      State
	generation uint64

	ready     chan struct{}
	readyOnce sync.Once
}

// NewController creates a controller showing Home.
func NewController(resolver *Resolver, history History, feed *Feed, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if feed == nil {
		feed = NewFeed(logger)
	}
	return &Controller{
		resolver: resolver,
		history:  history,
		feed:     feed,
		logger:   logger,
		state: State{
			Route: HomeRoute,
			Page:  NewPage(HomeRoute),
			Rates: client.Rates{},
		},
		ready: make(chan struct{}),
	}
}

// WithStatusRefresh makes Start refresh the network status every d. Zero
// loads it once.
func (c *Controller) WithStatusRefresh(d time.Duration) *Controller {
	c.refresh = d
	return c
}

// Start loads network status and rates, resolves the initial fragment (or
// shows Home) and then closes Ready.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.LoadNetworkStatus(ctx); err != nil {
		c.logger.Warn("failed to load network status", "error", err)
	}
	c.LoadRates(ctx)

	var err error
	if c.history.Fragment() != "" {
		_, err = c.HandleFragmentChange(ctx)
	} else {
		c.ShowHome()
	}
	c.readyOnce.Do(func() { close(c.ready) })

	if c.refresh > 0 {
		go c.refreshStatus(ctx)
	}

	if errors.Is(err, ErrSuperseded) {
		return nil
	}
	return err
}

// Ready is closed once Start has shown the initial view.
func (c *Controller) Ready() <-chan struct{} {
	return c.ready
}

// Feed returns the live feed cache.
func (c *Controller) Feed() *Feed {
	return c.feed
}

// State returns a snapshot of the controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.Generation = c.generation
	return s
}

// LatestBlocks merges the live block buffer with the current status.
func (c *Controller) LatestBlocks() []LiveBlock {
	return c.feed.Blocks(c.State().Status)
}

// LatestTransactions returns the live transaction buffer.
func (c *Controller) LatestTransactions() []LiveTransaction {
	return c.feed.Transactions()
}

// LoadNetworkStatus replaces the status snapshot. On failure the previous
// snapshot is kept and the error is recorded in the state.
func (c *Controller) LoadNetworkStatus(ctx context.Context) error {
	info, err := c.resolver.API().NetworkInfo(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.StatusErr = err
	if err != nil {
		return err
	}
	c.state.Status = info
	return nil
}

// LoadRates replaces the rate table. Failures leave amounts without USD.
func (c *Controller) LoadRates(ctx context.Context) {
	rates, err := c.resolver.API().Rates(ctx)
	if err != nil {
		c.logger.Warn("failed to load rates", "error", err)
		return
	}
	c.mu.Lock()
	c.state.Rates = rates
	c.mu.Unlock()
}

// HandleFragmentChange resolves the current history fragment.
func (c *Controller) HandleFragmentChange(ctx context.Context) (Page, error) {
	route := ParseFragment(c.history.Fragment())
	switch route.Kind {
	case RouteHome:
		return c.ShowHome(), nil
	case RouteTransaction:
		return c.ShowTransaction(ctx, route.ID, "")
	case RouteBlock:
		return c.SearchBlockHash(ctx, route.ID)
	case RouteAddress:
		return c.ShowAddress(ctx, route.ID)
	default:
		return c.ShowNotFound(), nil
	}
}

// Open navigates to fragment as if the user edited the URL and resolves it.
// Opening the current fragment again adds no history entry.
func (c *Controller) Open(ctx context.Context, fragment string) (Page, error) {
	if normalizeFragment(fragment) != c.history.Fragment() {
		c.history.Push(fragment)
	}
	return c.HandleFragmentChange(ctx)
}

// ShowTransaction navigates to a transaction. network, when set, is probed
// first.
func (c *Controller) ShowTransaction(ctx context.Context, txid string, network Network) (Page, error) {
	route := TransactionRoute(txid)
	gen := c.begin(route)
	page, err := c.resolver.Resolve(ctx, route, network)
	return c.finish(gen, page, err)
}

// ShowBlock navigates to a block on a known network.
func (c *Controller) ShowBlock(ctx context.Context, hash string, network Network) (Page, error) {
	route := BlockRoute(hash)
	gen := c.begin(route)
	page, err := c.resolver.Resolve(ctx, route, network)
	return c.finish(gen, page, err)
}

// ShowAddress navigates to an address.
func (c *Controller) ShowAddress(ctx context.Context, address string) (Page, error) {
	route := AddressRoute(address)
	gen := c.begin(route)
	page, err := c.resolver.Resolve(ctx, route, "")
	return c.finish(gen, page, err)
}

// SearchBlockHash probes every network for hash. The fragment is only
// written once the block is found; a miss shows NotFound and leaves history
// alone.
func (c *Controller) SearchBlockHash(ctx context.Context, hash string) (Page, error) {
	route := BlockRoute(hash)
	gen := c.next()
	view, err := c.resolver.ProbeBlock(ctx, hash)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		c.logger.Debug("discarding stale block probe", "hash", hash, "generation", gen)
		return Page{}, ErrSuperseded
	}

	c.state.Route = route
	c.state.Loading = false
	if err != nil {
		c.state.Page = NewPage(NotFoundRoute)
		if errors.Is(err, ErrNotFound) {
			err = nil
		}
		return c.state.Page, err
	}

	c.pushLocked(route.Fragment())
	page := NewPage(route)
	page.Block = view
	c.state.Page = page
	return page, nil
}

// ShowHome navigates to the bare path.
func (c *Controller) ShowHome() Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.pushLocked("")
	c.state.Route = HomeRoute
	c.state.Page = NewPage(HomeRoute)
	c.state.Loading = false
	return c.state.Page
}

// ShowNotFound shows the not-found view without touching history.
func (c *Controller) ShowNotFound() Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.state.Route = NotFoundRoute
	c.state.Page = NewPage(NotFoundRoute)
	c.state.Loading = false
	return c.state.Page
}

// Search handles free-text input. A 64 character hex string is shown as a
// transaction when any backend knows it and probed as a block hash
// otherwise; a valid address is shown directly. Blank input does nothing.
// Anything else returns a *SearchError and leaves the view unchanged.
func (c *Controller) Search(ctx context.Context, query string) (Page, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return c.State().Page, nil
	}

	switch ClassifyQuery(q) {
	case QueryHash:
		gen := c.next()
		network, ok, err := c.resolver.IsTransaction(ctx, q)
		if !c.current(gen) {
			return Page{}, ErrSuperseded
		}
		if err != nil {
			c.settle(gen)
			return c.State().Page, err
		}
		if ok {
			return c.ShowTransaction(ctx, q, network)
		}
		return c.SearchBlockHash(ctx, q)

	case QueryAddress:
		return c.ShowAddress(ctx, q)

	default:
		return c.State().Page, &SearchError{Query: q}
	}
}

// begin starts a navigation that writes its fragment immediately.
func (c *Controller) begin(route Route) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.pushLocked(route.Fragment())
	c.state.Route = route
	c.state.Page = NewPage(route)
	c.state.Loading = true
	return c.generation
}

// next starts a navigation that leaves the view alone until it finishes.
func (c *Controller) next() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.state.Loading = true
	return c.generation
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.generation
}

func (c *Controller) settle(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.generation {
		c.state.Loading = false
	}
}

func (c *Controller) finish(gen uint64, page Page, err error) (Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		c.logger.Debug("discarding stale navigation result", "view", page.Kind().String(), "generation", gen)
		return Page{}, ErrSuperseded
	}
	c.state.Page = page
	c.state.Loading = false
	return page, err
}

// pushLocked writes fragment unless it is already current.
func (c *Controller) pushLocked(fragment string) {
	if c.history.Fragment() != fragment {
		c.history.Push(fragment)
	}
}

func (c *Controller) refreshStatus(ctx context.Context) {
	ticker := time.NewTicker(c.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.LoadNetworkStatus(ctx); err != nil {
				c.logger.Warn("failed to refresh network status", "error", err)
			}
		}
	}
}
