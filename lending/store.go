/*
store.go - Persistence contracts for the lending domain

PURPOSE:
  Defines the interface between the lending service and the relational
  store. Implementations live in store/sqlite; the same contracts map to
  PostgreSQL with dialect changes only.

CONTRACT NOTES:
  - Payment transactions are APPEND-ONLY: there is no update or delete.
  - UpdateCredit/UpdateInstallment are optimistic: they match the record's
    current version and fail with engine.ErrConcurrentModification when the
    row moved underneath the caller.
  - UpdateCreditStatus writes the status field only; services use it for
    state-machine transitions so audit diffs stay narrow.
  - WithTx runs a function against a transactional view of the store;
    either everything inside commits or nothing does. Payment application
    and schedule generation require it.
*/
package lending

import (
	"context"
	"time"

	"github.com/libramoneda/credit-engine/engine"
)

// Store is the full persistence surface the lending service needs.
type Store interface {
	CustomerStore
	CompanyStore
	RateConfigStore
	CreditStore
	InstallmentStore
	TransactionStore

	// WithTx executes fn within one store transaction. If fn returns an
	// error the transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Reset clears every table. Demo scenario loading only; never called
	// from production paths.
	Reset(ctx context.Context) error
}

type CustomerStore interface {
	SaveCustomer(ctx context.Context, c *Customer) error
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	ListCustomers(ctx context.Context) ([]Customer, error)
}

type CompanyStore interface {
	SaveCompany(ctx context.Context, c *Company) error
	GetCompany(ctx context.Context, id string) (*Company, error)
	ListCompanies(ctx context.Context) ([]Company, error)
}

type RateConfigStore interface {
	// SaveRateConfig inserts a config; the (year, month) pair is unique.
	SaveRateConfig(ctx context.Context, rc *engine.RateConfig) error

	// ActiveRateConfigByPeriod returns the active config for the exact
	// (year, month), or nil when absent.
	ActiveRateConfigByPeriod(ctx context.Context, year int, month time.Month) (*engine.RateConfig, error)

	// LatestActiveRateConfig returns the most recent active config whose
	// effective date is on or before the reference date, or nil.
	LatestActiveRateConfig(ctx context.Context, reference time.Time) (*engine.RateConfig, error)

	ListRateConfigs(ctx context.Context) ([]engine.RateConfig, error)
}

type CreditStore interface {
	SaveCredit(ctx context.Context, c *Credit) error

	// UpdateCredit rewrites the credit's mutable fields, guarded by the
	// version the caller read. Bumps the version on success.
	UpdateCredit(ctx context.Context, c *Credit) error

	// UpdateCreditStatus writes only the status field (version-guarded).
	UpdateCreditStatus(ctx context.Context, c *Credit, status engine.CreditStatus) error

	GetCredit(ctx context.Context, id string) (*Credit, error)
	GetCreditByNumber(ctx context.Context, number string) (*Credit, error)
	ListCredits(ctx context.Context) ([]Credit, error)
	ListCreditsByStatus(ctx context.Context, statuses ...engine.CreditStatus) ([]Credit, error)

	// MaxCreditSequence returns the highest sequence already assigned for
	// the year's CR-<year>-NNNNN numbers, zero when none exist.
	MaxCreditSequence(ctx context.Context, year int) (int, error)
}

type InstallmentStore interface {
	// SaveInstallments bulk-inserts a generated schedule.
	SaveInstallments(ctx context.Context, installments []engine.Installment) error

	// UpdateInstallment rewrites paid/late/status fields, version-guarded.
	UpdateInstallment(ctx context.Context, in *engine.Installment) error

	InstallmentsByCredit(ctx context.Context, creditID string) ([]engine.Installment, error)
	GetInstallment(ctx context.Context, creditID string, number int) (*engine.Installment, error)

	// DeleteInstallmentsByCredit removes a credit's schedule wholesale.
	// Only schedule regeneration may call this.
	DeleteInstallmentsByCredit(ctx context.Context, creditID string) error
}

type TransactionStore interface {
	// AppendTransaction persists a payment transaction. Append-only.
	AppendTransaction(ctx context.Context, tx *PaymentTransaction) error

	TransactionsByInstallment(ctx context.Context, installmentID string) ([]PaymentTransaction, error)
	TransactionsByCredit(ctx context.Context, creditID string) ([]PaymentTransaction, error)

	// CountTransactionsByCredit reports how many receipts exist for a
	// credit; regeneration refuses to run once any do.
	CountTransactionsByCredit(ctx context.Context, creditID string) (int, error)
}
