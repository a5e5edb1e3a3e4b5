// Package reports holds the income statement for the active filter.
package reports

import (
	"context"
	"sync"

	"ledgerlite/internal/core"
	applog "ledgerlite/internal/log"
	"ledgerlite/internal/remote"
)

// Session gates access. Epoch changes whenever the session starts or ends.
type Session interface {
	IsAuthenticated() bool
	Epoch() uint64
}

// Aggregator keeps the collaborator's statement as is. It never derives
// figures from the transaction list.
type Aggregator struct {
	client  remote.StatementReader
	session Session
	logger  *applog.Logger

	mu        sync.RWMutex
	statement core.IncomeStatement
}

func New(client remote.StatementReader, session Session, logger *applog.Logger) *Aggregator {
	if logger == nil {
		logger = applog.Discard()
	}
	return &Aggregator{
		client:  client,
		session: session,
		logger:  logger.WithComponent(applog.ComponentReports),
	}
}

// Load fetches the statement for r and replaces the held one on success.
// Same gating as the transaction store.
func (a *Aggregator) Load(ctx context.Context, r core.DateRange) (core.IncomeStatement, error) {
	if !a.session.IsAuthenticated() {
		a.logger.DebugContext(ctx, "Skipping load while logged out")
		return core.IncomeStatement{}, nil
	}
	epoch := a.session.Epoch()

	st, err := a.client.IncomeStatement(ctx, r)
	if err != nil {
		fields := applog.NewFields().WithOperation(applog.OpLoad).WithRange(r).WithError(err)
		a.logger.WarnContext(ctx, "Failed to load income statement", fields.ToSlice()...)
		return core.IncomeStatement{}, err
	}
	if !st.Consistent() {
		a.logger.WarnContext(ctx, "Income statement net does not match income minus expenses",
			"income", st.Income.String(),
			"expenses", st.Expenses.String(),
			"net_income", st.NetIncome.String())
	}

	a.mu.Lock()
	if a.session.Epoch() != epoch {
		a.mu.Unlock()
		a.logger.DebugContext(ctx, "Dropping statement from an ended session")
		return core.IncomeStatement{}, nil
	}
	a.statement = st
	a.mu.Unlock()

	fields := applog.NewFields().WithOperation(applog.OpLoad).WithRange(r)
	a.logger.DebugContext(ctx, "Income statement loaded", fields.ToSlice()...)
	return st, nil
}

func (a *Aggregator) Statement() core.IncomeStatement {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.statement
}

// Reset zeroes the statement.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statement = core.IncomeStatement{}
}
