// Package transactions holds the transaction list for the active filter.
//
// The list is only ever replaced by a load. Create and Delete never touch it;
// callers re-load to pick up the collaborator's authoritative list and order.
package transactions

import (
	"context"
	"errors"
	"strings"
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

type Client interface {
	remote.TransactionLister
	remote.TransactionWriter
}

var ErrEmptyID = errors.New("transaction id is required")

type Store struct {
	client  Client
	session Session
	today   func() core.Date
	logger  *applog.Logger

	mu    sync.RWMutex
	items []core.Transaction
}

func New(client Client, session Session, logger *applog.Logger) *Store {
	if logger == nil {
		logger = applog.Discard()
	}
	return &Store{
		client:  client,
		session: session,
		today:   core.Today,
		logger:  logger.WithComponent(applog.ComponentTransactions),
	}
}

// SetClock overrides the date used for drafts without one.
func (s *Store) SetClock(today func() core.Date) {
	s.today = today
}

// Load fetches the list for r and replaces the held list on success.
// It does nothing while logged out, and drops a result whose session ended
// while the request was in flight.
func (s *Store) Load(ctx context.Context, r core.DateRange) ([]core.Transaction, error) {
	if !s.session.IsAuthenticated() {
		s.logger.DebugContext(ctx, "Skipping load while logged out")
		return nil, nil
	}
	epoch := s.session.Epoch()

	list, err := s.client.ListTransactions(ctx, r)
	if err != nil {
		fields := applog.NewFields().WithOperation(applog.OpLoad).WithRange(r).WithError(err)
		s.logger.WarnContext(ctx, "Failed to load transactions", fields.ToSlice()...)
		return nil, err
	}

	s.mu.Lock()
	if s.session.Epoch() != epoch {
		s.mu.Unlock()
		s.logger.DebugContext(ctx, "Dropping transactions from an ended session")
		return nil, nil
	}
	s.items = list
	s.mu.Unlock()

	fields := applog.NewFields().WithOperation(applog.OpLoad).WithRange(r).WithCount(len(list))
	s.logger.DebugContext(ctx, "Transactions loaded", fields.ToSlice()...)
	return clone(list), nil
}

// Validate checks d without sending anything. An empty date becomes today.
func (s *Store) Validate(d core.Draft) (core.NewTransaction, error) {
	return d.Validate(s.today())
}

// ValidateID rejects a blank id before any request is made.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return &core.ValidationError{Field: "id", Err: ErrEmptyID}
	}
	return nil
}

// Create validates d locally and sends it. Invalid drafts never reach the
// network. The returned transaction is not added to the list.
func (s *Store) Create(ctx context.Context, d core.Draft) (core.Transaction, error) {
	nt, err := s.Validate(d)
	if err != nil {
		return core.Transaction{}, err
	}
	if !s.session.IsAuthenticated() {
		return core.Transaction{}, core.ErrNotAuthenticated
	}

	id, err := s.client.CreateTransaction(ctx, nt)
	if err != nil {
		fields := applog.NewFields().WithOperation(applog.OpCreate).WithTransaction(nt).WithError(err)
		s.logger.WarnContext(ctx, "Failed to create transaction", fields.ToSlice()...)
		return core.Transaction{}, err
	}

	fields := applog.NewFields().WithOperation(applog.OpCreate).WithTransaction(nt).WithTransactionID(id)
	s.logger.InfoContext(ctx, "Transaction created", fields.ToSlice()...)

	return core.Transaction{
		ID:          id,
		Description: nt.Description,
		Amount:      nt.Amount,
		Type:        nt.Type,
		Date:        nt.Date,
	}, nil
}

// Delete removes id on the collaborator. The held list is left as is.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if !s.session.IsAuthenticated() {
		return core.ErrNotAuthenticated
	}

	if err := s.client.DeleteTransaction(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "Failed to delete transaction",
			applog.FieldOperation, applog.OpDelete,
			applog.FieldTransactionID, id,
			applog.FieldError, err.Error())
		return err
	}

	s.logger.InfoContext(ctx, "Transaction deleted",
		applog.FieldOperation, applog.OpDelete,
		applog.FieldTransactionID, id)
	return nil
}

// List returns a copy of the held transactions in collaborator order.
func (s *Store) List() []core.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.items)
}

func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
}

func clone(in []core.Transaction) []core.Transaction {
	out := make([]core.Transaction, len(in))
	copy(out, in)
	return out
}
