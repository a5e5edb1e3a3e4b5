package remote

import (
	"context"

	"ledgerlite/internal/core"
)

// Ports for the remote collaborator that stores transactions and computes
// aggregates. Implementations own transport concerns such as timeouts.
type (
	Authenticator interface {
		Login(ctx context.Context, creds core.Credentials) (core.Identity, error)
	}

	// TransactionLister returns transactions in the collaborator's order.
	TransactionLister interface {
		ListTransactions(ctx context.Context, r core.DateRange) ([]core.Transaction, error)
	}

	TransactionWriter interface {
		// CreateTransaction returns the server-assigned id.
		CreateTransaction(ctx context.Context, nt core.NewTransaction) (id string, err error)
		DeleteTransaction(ctx context.Context, id string) error
	}

	// StatementReader returns the authoritative income statement for a range.
	StatementReader interface {
		IncomeStatement(ctx context.Context, r core.DateRange) (core.IncomeStatement, error)
	}

	Collaborator interface {
		Authenticator
		TransactionLister
		TransactionWriter
		StatementReader
	}
)
