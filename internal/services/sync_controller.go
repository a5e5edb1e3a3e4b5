package services

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"ledgerlite/internal/core"
	"ledgerlite/internal/filter"
	applog "ledgerlite/internal/log"
	"ledgerlite/internal/reports"
	"ledgerlite/internal/session"
	"ledgerlite/internal/transactions"
)

// MutationPublisher announces successful mutations. Failures are logged and
// never change controller state.
type MutationPublisher interface {
	PublishMutation(ctx context.Context, op, transactionID, userID string) error
}

// State is a read-only view of everything the UI renders.
type State struct {
	Transactions  []core.Transaction
	Statement     core.IncomeStatement
	Filter        core.DateRange
	Loading       bool
	Error         string
	User          core.Identity
	Authenticated bool
	LoginError    string
}

// SyncController is the only writer of the transaction list and the income
// statement after construction. It owns the shared loading and error values.
//
// Every refresh reads the filter at the moment it starts. Overlapping
// refreshes are not cancelled; whichever settles last wins.
type SyncController struct {
	session   *session.State
	filter    *filter.Filter
	txs       *transactions.Store
	reports   *reports.Aggregator
	publisher MutationPublisher
	logger    *applog.Logger

	mu         sync.Mutex
	inflight   int
	err        string
	generation uint64
}

// NewSyncController wires the components and subscribes to session changes:
// a started session refreshes, an ended one resets everything.
func NewSyncController(sess *session.State, f *filter.Filter, txs *transactions.Store, agg *reports.Aggregator, logger *applog.Logger) *SyncController {
	if logger == nil {
		logger = applog.Discard()
	}
	c := &SyncController{
		session: sess,
		filter:  f,
		txs:     txs,
		reports: agg,
		logger:  logger.WithComponent(applog.ComponentSync),
	}
	sess.Subscribe(c)
	return c
}

// SetPublisher enables mutation events. A nil publisher disables them.
func (c *SyncController) SetPublisher(p MutationPublisher) {
	c.publisher = p
}

// SessionStarted implements session.Observer.
func (c *SyncController) SessionStarted(ctx context.Context, _ core.Identity) {
	c.Refresh(ctx)
}

// SessionEnded implements session.Observer.
func (c *SyncController) SessionEnded(ctx context.Context) {
	c.txs.Reset()
	c.reports.Reset()
	c.mu.Lock()
	c.err = ""
	c.mu.Unlock()
	c.logger.DebugContext(ctx, "Cleared transactions and statement")
}

// Refresh loads the transaction list and the statement concurrently for the
// current filter and returns once both have settled. Each result is applied
// independently; the first failure becomes the shared error.
func (c *SyncController) Refresh(ctx context.Context) error {
	if !c.session.IsAuthenticated() {
		return nil
	}
	rng := c.filter.Get()
	gen := c.begin()

	fields := applog.NewFields().WithOperation(applog.OpRefresh).WithRange(rng).WithGeneration(gen)
	c.logger.DebugContext(ctx, "Refresh started", fields.ToSlice()...)

	var g errgroup.Group
	g.Go(func() error {
		_, err := c.txs.Load(ctx, rng)
		return err
	})
	g.Go(func() error {
		_, err := c.reports.Load(ctx, rng)
		return err
	})
	err := g.Wait()

	c.end(err)
	if err != nil {
		c.logger.WarnContext(ctx, "Refresh finished with errors", fields.WithError(err).ToSlice()...)
		return err
	}
	c.logger.DebugContext(ctx, "Refresh finished", fields.ToSlice()...)
	return nil
}

// ApplyFilter sets the filter and refreshes with it.
func (c *SyncController) ApplyFilter(ctx context.Context, r core.DateRange) error {
	c.filter.Set(r)
	return c.Refresh(ctx)
}

// ClearFilter removes both bounds and refreshes.
func (c *SyncController) ClearFilter(ctx context.Context) error {
	c.filter.Clear()
	return c.Refresh(ctx)
}

// Create sends d and, on success, refreshes with the filter current at that
// time. Validation failures are returned without touching shared state; a
// rejected create becomes the shared error and skips the refresh.
func (c *SyncController) Create(ctx context.Context, d core.Draft) (core.Transaction, error) {
	if _, err := c.txs.Validate(d); err != nil {
		return core.Transaction{}, err
	}
	if !c.session.IsAuthenticated() {
		return core.Transaction{}, core.ErrNotAuthenticated
	}

	c.begin()
	tx, err := c.txs.Create(ctx, d)
	if err != nil {
		c.end(err)
		return core.Transaction{}, err
	}

	c.publish(ctx, applog.OpCreate, tx.ID)
	c.Refresh(ctx)
	c.end(nil)
	return tx, nil
}

// Delete removes id and, on success, refreshes with the current filter.
// A failure becomes the shared error and the list is left as is.
func (c *SyncController) Delete(ctx context.Context, id string) error {
	if err := transactions.ValidateID(id); err != nil {
		return err
	}
	if !c.session.IsAuthenticated() {
		return core.ErrNotAuthenticated
	}

	c.begin()
	if err := c.txs.Delete(ctx, id); err != nil {
		c.end(err)
		return err
	}

	c.publish(ctx, applog.OpDelete, id)
	c.Refresh(ctx)
	c.end(nil)
	return nil
}

// Login authenticates; a successful login triggers a refresh through the
// session subscription. A failed login is also the shared error.
func (c *SyncController) Login(ctx context.Context, creds core.Credentials) (core.Identity, error) {
	id, err := c.session.Login(ctx, creds)
	if err != nil {
		c.mu.Lock()
		c.err = c.session.LastError()
		c.mu.Unlock()
		return core.Identity{}, err
	}
	return id, nil
}

// Logout ends the session. The list and statement are emptied through the
// session subscription.
func (c *SyncController) Logout(ctx context.Context) {
	c.session.Logout(ctx)
}

// Restore resumes a persisted session, refreshing if one was found.
func (c *SyncController) Restore(ctx context.Context) (core.Identity, bool) {
	return c.session.Restore(ctx)
}

// DismissError clears the shared error.
func (c *SyncController) DismissError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = ""
}

func (c *SyncController) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight > 0
}

func (c *SyncController) Error() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Snapshot returns a copy of the current state.
func (c *SyncController) Snapshot() State {
	user, ok := c.session.Current()
	c.mu.Lock()
	loading, errMsg := c.inflight > 0, c.err
	c.mu.Unlock()

	return State{
		Transactions:  c.txs.List(),
		Statement:     c.reports.Statement(),
		Filter:        c.filter.Get(),
		Loading:       loading,
		Error:         errMsg,
		User:          user,
		Authenticated: ok,
		LoginError:    c.session.LastError(),
	}
}

// begin enters Loading and clears the previous error.
func (c *SyncController) begin() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight++
	c.err = ""
	c.generation++
	return c.generation
}

// end leaves Loading once nothing else is in flight. A non-nil err replaces
// the shared error.
func (c *SyncController) end(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight > 0 {
		c.inflight--
	}
	if err != nil {
		c.err = err.Error()
	}
}

func (c *SyncController) publish(ctx context.Context, op, transactionID string) {
	if c.publisher == nil {
		return
	}
	user, _ := c.session.Current()
	if err := c.publisher.PublishMutation(ctx, op, transactionID, user.ID); err != nil {
		c.logger.WarnContext(ctx, "Failed to publish mutation event",
			applog.FieldOperation, applog.OpPublish,
			applog.FieldTransactionID, transactionID,
			applog.FieldError, err.Error())
	}
}
