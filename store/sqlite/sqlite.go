/*
Package sqlite provides the SQLite-backed implementation of lending.Store.

PURPOSE:
  Implements every persistence contract the lending service depends on
  (customers, companies, rate configs, credits, installments, payment
  transactions) plus WithTx. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  payment_transactions is an audit ledger:
  - No UPDATE statements on the table
  - No DELETE statements on the table
  - Corrections happen as compensating domain operations, never row edits

OPTIMISTIC CONCURRENCY:
  credits and installments carry a version column. Updates match the
  version the caller read and bump it; zero rows affected surfaces as
  engine.ErrConcurrentModification (retryable).

KEY TABLES:
  customers            Borrower records
  companies            Payroll-agreement employers
  rate_configs         Monthly rate configurations, UNIQUE(year, month)
  credits              Loan aggregates, UNIQUE(number), versioned
  installments         Amortization schedule rows, UNIQUE(credit_id, number)
  payment_transactions Immutable cash receipts with their waterfall split

MONEY AND DATES:
  Decimal amounts are stored as TEXT and re-parsed on read - never as
  floating point. Calendar dates use "2006-01-02"; timestamps use RFC3339.

WAL MODE:
  SQLite is opened with WAL and foreign keys on. Transactions are
  serialized through a mutex: SQLite allows a single writer, and a blocked
  BEGIN inside WithTx would otherwise surface as SQLITE_BUSY.

USAGE:
  store, err := sqlite.New("./data/credit.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := lending.NewService(store, logger)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - lending/store.go: interface definitions and contract notes
  - lending/service.go: the operations driving this store
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/libramoneda/credit-engine/engine"
	"github.com/libramoneda/credit-engine/lending"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = time.RFC3339
)

// querier is the subset of *sql.DB and *sql.Tx the queries need, so the
// same code serves both the root store and a transactional view.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements lending.Store on SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
	session
}

// New creates a SQLite store at the given path and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; one pooled connection also keeps an
	// in-memory database from fragmenting across connections.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, session: session{q: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		identification_type TEXT NOT NULL DEFAULT 'CC',
		identification_number TEXT NOT NULL UNIQUE,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS companies (
		id TEXT PRIMARY KEY,
		nit TEXT NOT NULL UNIQUE,
		business_name TEXT NOT NULL,
		trade_name TEXT NOT NULL DEFAULT '',
		payment_day INTEGER NOT NULL,
		contact_name TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- One configuration per calendar month
	CREATE TABLE IF NOT EXISTS rate_configs (
		id TEXT PRIMARY KEY,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		usury_rate TEXT NOT NULL,
		base_rate TEXT NOT NULL,
		aval_rate_libranza TEXT NOT NULL,
		aval_rate_high TEXT NOT NULL,
		aval_rate_low TEXT NOT NULL,
		iva_rate TEXT NOT NULL,
		late_rate TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		effective_date TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		UNIQUE(year, month)
	);

	CREATE INDEX IF NOT EXISTS idx_rate_configs_effective
		ON rate_configs(active, effective_date DESC);

	CREATE TABLE IF NOT EXISTS credits (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL UNIQUE,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		company_id TEXT REFERENCES companies(id),
		credit_type TEXT NOT NULL,
		frequency TEXT NOT NULL DEFAULT 'MONTHLY',
		requested_amount TEXT NOT NULL,
		requested_term INTEGER NOT NULL,
		approved_amount TEXT NOT NULL DEFAULT '0',
		approved_term INTEGER NOT NULL DEFAULT 0,
		rate_config_id TEXT NOT NULL DEFAULT '',
		base_rate TEXT NOT NULL DEFAULT '0',
		aval_rate TEXT NOT NULL DEFAULT '0',
		iva_rate TEXT NOT NULL DEFAULT '0',
		late_rate TEXT NOT NULL DEFAULT '0',
		monthly_payment_base TEXT NOT NULL DEFAULT '0',
		monthly_aval TEXT NOT NULL DEFAULT '0',
		monthly_iva_aval TEXT NOT NULL DEFAULT '0',
		monthly_payment TEXT NOT NULL DEFAULT '0',
		total_amount TEXT NOT NULL DEFAULT '0',
		total_interest TEXT NOT NULL DEFAULT '0',
		total_aval TEXT NOT NULL DEFAULT '0',
		total_iva_aval TEXT NOT NULL DEFAULT '0',
		disbursement_date TEXT,
		disbursement_method TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		balance TEXT NOT NULL DEFAULT '0',
		sales_advisor TEXT NOT NULL DEFAULT '',
		approved_by TEXT NOT NULL DEFAULT '',
		approved_at TEXT,
		approval_notes TEXT NOT NULL DEFAULT '',
		rejected_by TEXT NOT NULL DEFAULT '',
		rejected_at TEXT,
		rejection_reason TEXT NOT NULL DEFAULT '',
		purpose TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_credits_status ON credits(status);
	CREATE INDEX IF NOT EXISTS idx_credits_customer ON credits(customer_id);

	CREATE TABLE IF NOT EXISTS installments (
		id TEXT PRIMARY KEY,
		credit_id TEXT NOT NULL REFERENCES credits(id),
		number INTEGER NOT NULL,
		due_date TEXT NOT NULL,
		payment_deadline TEXT NOT NULL,
		period_days INTEGER NOT NULL,
		scheduled_capital TEXT NOT NULL,
		scheduled_interest TEXT NOT NULL,
		scheduled_aval TEXT NOT NULL,
		scheduled_iva_aval TEXT NOT NULL,
		scheduled_total TEXT NOT NULL,
		paid_capital TEXT NOT NULL DEFAULT '0',
		paid_interest TEXT NOT NULL DEFAULT '0',
		paid_aval TEXT NOT NULL DEFAULT '0',
		paid_iva_aval TEXT NOT NULL DEFAULT '0',
		paid_late_interest TEXT NOT NULL DEFAULT '0',
		paid_total TEXT NOT NULL DEFAULT '0',
		late_rate TEXT NOT NULL DEFAULT '0',
		late_interest_calculated TEXT NOT NULL DEFAULT '0',
		late_interest_applied TEXT NOT NULL DEFAULT '0',
		late_calculated_at TEXT,
		late_applied_at TEXT,
		balance_before TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		payment_date TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(credit_id, number)
	);

	CREATE INDEX IF NOT EXISTS idx_installments_credit
		ON installments(credit_id, number);
	CREATE INDEX IF NOT EXISTS idx_installments_status
		ON installments(status);

	-- Append-only audit ledger. installment_id is intentionally NOT a
	-- foreign key: schedule regeneration may delete installments, but a
	-- receipt record must outlive every schedule it referenced. The credit
	-- reference is enforced, so a receipt can never dangle entirely.
	CREATE TABLE IF NOT EXISTS payment_transactions (
		id TEXT PRIMARY KEY,
		credit_id TEXT NOT NULL REFERENCES credits(id),
		installment_id TEXT NOT NULL,
		installment_number INTEGER NOT NULL,
		amount TEXT NOT NULL,
		paid_at TEXT NOT NULL,
		method TEXT NOT NULL DEFAULT '',
		reference TEXT NOT NULL DEFAULT '',
		applied_late_interest TEXT NOT NULL,
		applied_interest TEXT NOT NULL,
		applied_aval TEXT NOT NULL,
		applied_iva_aval TEXT NOT NULL,
		applied_capital TEXT NOT NULL,
		recorded_by TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payment_transactions_credit
		ON payment_transactions(credit_id);
	CREATE INDEX IF NOT EXISTS idx_payment_transactions_installment
		ON payment_transactions(installment_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL VIEW (lending.Store WithTx)
// =============================================================================

// WithTx executes fn against a transactional view. The mutex serializes
// writers; SQLite allows only one.
func (s *Store) WithTx(ctx context.Context, fn func(lending.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{session{q: sqlTx}}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore is the view handed to WithTx callbacks. Nested WithTx joins the
// current transaction rather than opening a second one.
type txStore struct {
	session
}

func (ts *txStore) WithTx(ctx context.Context, fn func(lending.Store) error) error {
	return fn(ts)
}

// session holds the query implementations shared by Store and txStore.
type session struct {
	q querier
}

// =============================================================================
// CUSTOMER STORE
// =============================================================================

func (s *session) SaveCustomer(ctx context.Context, c *lending.Customer) error {
	query := `
		INSERT INTO customers
		(id, identification_type, identification_number, first_name, last_name, phone, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			identification_type = excluded.identification_type,
			identification_number = excluded.identification_number,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			phone = excluded.phone,
			email = excluded.email,
			updated_at = excluded.updated_at
	`
	_, err := s.q.ExecContext(ctx, query,
		c.ID, c.IdentificationType, c.IdentificationNumber,
		c.FirstName, c.LastName, c.Phone, c.Email,
		c.CreatedAt.UTC().Format(timeLayout),
		c.UpdatedAt.UTC().Format(timeLayout),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("customer identification %s already registered", c.IdentificationNumber)
	}
	return err
}

func (s *session) GetCustomer(ctx context.Context, id string) (*lending.Customer, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, identification_type, identification_number, first_name, last_name, phone, email, created_at, updated_at
		 FROM customers WHERE id = ?`, id)

	var c lending.Customer
	var createdAt, updatedAt string
	err := row.Scan(&c.ID, &c.IdentificationType, &c.IdentificationNumber,
		&c.FirstName, &c.LastName, &c.Phone, &c.Email, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

func (s *session) ListCustomers(ctx context.Context) ([]lending.Customer, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, identification_type, identification_number, first_name, last_name, phone, email, created_at, updated_at
		 FROM customers ORDER BY first_name, last_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []lending.Customer
	for rows.Next() {
		var c lending.Customer
		var createdAt, updatedAt string
		if err := rows.Scan(&c.ID, &c.IdentificationType, &c.IdentificationNumber,
			&c.FirstName, &c.LastName, &c.Phone, &c.Email, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(createdAt)
		c.UpdatedAt = parseTime(updatedAt)
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// =============================================================================
// COMPANY STORE
// =============================================================================

func (s *session) SaveCompany(ctx context.Context, c *lending.Company) error {
	query := `
		INSERT INTO companies
		(id, nit, business_name, trade_name, payment_day, contact_name, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			business_name = excluded.business_name,
			trade_name = excluded.trade_name,
			payment_day = excluded.payment_day,
			contact_name = excluded.contact_name,
			active = excluded.active,
			updated_at = excluded.updated_at
	`
	_, err := s.q.ExecContext(ctx, query,
		c.ID, c.NIT, c.BusinessName, c.TradeName, c.PaymentDay, c.ContactName, c.Active,
		c.CreatedAt.UTC().Format(timeLayout),
		c.UpdatedAt.UTC().Format(timeLayout),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("company NIT %s already registered", c.NIT)
	}
	return err
}

func (s *session) GetCompany(ctx context.Context, id string) (*lending.Company, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, nit, business_name, trade_name, payment_day, contact_name, active, created_at, updated_at
		 FROM companies WHERE id = ?`, id)

	var c lending.Company
	var createdAt, updatedAt string
	err := row.Scan(&c.ID, &c.NIT, &c.BusinessName, &c.TradeName,
		&c.PaymentDay, &c.ContactName, &c.Active, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

func (s *session) ListCompanies(ctx context.Context) ([]lending.Company, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, nit, business_name, trade_name, payment_day, contact_name, active, created_at, updated_at
		 FROM companies ORDER BY business_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var companies []lending.Company
	for rows.Next() {
		var c lending.Company
		var createdAt, updatedAt string
		if err := rows.Scan(&c.ID, &c.NIT, &c.BusinessName, &c.TradeName,
			&c.PaymentDay, &c.ContactName, &c.Active, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(createdAt)
		c.UpdatedAt = parseTime(updatedAt)
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// =============================================================================
// RATE CONFIG STORE
// =============================================================================

const rateConfigColumns = `id, year, month, usury_rate, base_rate,
	aval_rate_libranza, aval_rate_high, aval_rate_low, iva_rate, late_rate,
	active, effective_date, notes, created_by, created_at`

func (s *session) SaveRateConfig(ctx context.Context, rc *engine.RateConfig) error {
	query := `
		INSERT INTO rate_configs
		(id, year, month, usury_rate, base_rate, aval_rate_libranza, aval_rate_high,
		 aval_rate_low, iva_rate, late_rate, active, effective_date, notes, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.q.ExecContext(ctx, query,
		rc.ID, rc.Year, int(rc.Month),
		rc.UsuryRate.String(), rc.BaseRate.String(),
		rc.AvalRateLibranza.String(), rc.AvalRateHigh.String(), rc.AvalRateLow.String(),
		rc.IVARate.String(), rc.LateRate.String(),
		rc.Active,
		rc.EffectiveDate.Format(dateLayout),
		rc.Notes, rc.CreatedBy,
		rc.CreatedAt.UTC().Format(timeLayout),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("rate config for %d-%02d already exists", rc.Year, int(rc.Month))
	}
	return err
}

func (s *session) ActiveRateConfigByPeriod(ctx context.Context, year int, month time.Month) (*engine.RateConfig, error) {
	configs, err := s.queryRateConfigs(ctx,
		`SELECT `+rateConfigColumns+` FROM rate_configs
		 WHERE year = ? AND month = ? AND active ORDER BY created_at DESC LIMIT 1`,
		year, int(month))
	if err != nil || len(configs) == 0 {
		return nil, err
	}
	return &configs[0], nil
}

func (s *session) LatestActiveRateConfig(ctx context.Context, reference time.Time) (*engine.RateConfig, error) {
	configs, err := s.queryRateConfigs(ctx,
		`SELECT `+rateConfigColumns+` FROM rate_configs
		 WHERE active AND effective_date <= ?
		 ORDER BY effective_date DESC LIMIT 1`,
		reference.Format(dateLayout))
	if err != nil || len(configs) == 0 {
		return nil, err
	}
	return &configs[0], nil
}

func (s *session) ListRateConfigs(ctx context.Context) ([]engine.RateConfig, error) {
	return s.queryRateConfigs(ctx,
		`SELECT `+rateConfigColumns+` FROM rate_configs ORDER BY year DESC, month DESC`)
}

func (s *session) queryRateConfigs(ctx context.Context, query string, args ...any) ([]engine.RateConfig, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []engine.RateConfig
	for rows.Next() {
		var rc engine.RateConfig
		var month int
		var usury, base, avalL, avalH, avalLow, iva, late string
		var effectiveDate, createdAt string
		if err := rows.Scan(&rc.ID, &rc.Year, &month, &usury, &base,
			&avalL, &avalH, &avalLow, &iva, &late,
			&rc.Active, &effectiveDate, &rc.Notes, &rc.CreatedBy, &createdAt); err != nil {
			return nil, err
		}
		rc.Month = time.Month(month)
		rc.UsuryRate = dec(usury)
		rc.BaseRate = dec(base)
		rc.AvalRateLibranza = dec(avalL)
		rc.AvalRateHigh = dec(avalH)
		rc.AvalRateLow = dec(avalLow)
		rc.IVARate = dec(iva)
		rc.LateRate = dec(late)
		rc.EffectiveDate = parseDate(effectiveDate)
		rc.CreatedAt = parseTime(createdAt)
		configs = append(configs, rc)
	}
	return configs, rows.Err()
}

// =============================================================================
// CREDIT STORE
// =============================================================================

const creditColumns = `id, number, customer_id, company_id, credit_type, frequency,
	requested_amount, requested_term, approved_amount, approved_term,
	rate_config_id, base_rate, aval_rate, iva_rate, late_rate,
	monthly_payment_base, monthly_aval, monthly_iva_aval, monthly_payment,
	total_amount, total_interest, total_aval, total_iva_aval,
	disbursement_date, disbursement_method, status, balance,
	sales_advisor, approved_by, approved_at, approval_notes,
	rejected_by, rejected_at, rejection_reason,
	purpose, notes, version, created_at, updated_at`

func (s *session) SaveCredit(ctx context.Context, c *lending.Credit) error {
	if c.Version == 0 {
		c.Version = 1
	}
	query := `
		INSERT INTO credits (` + creditColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
		        ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.q.ExecContext(ctx, query, creditArgs(c)...)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("credit number %s already exists", c.Number)
	}
	return err
}

func (s *session) UpdateCredit(ctx context.Context, c *lending.Credit) error {
	c.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE credits SET
			approved_amount = ?, approved_term = ?,
			rate_config_id = ?, base_rate = ?, aval_rate = ?, iva_rate = ?, late_rate = ?,
			monthly_payment_base = ?, monthly_aval = ?, monthly_iva_aval = ?, monthly_payment = ?,
			total_amount = ?, total_interest = ?, total_aval = ?, total_iva_aval = ?,
			disbursement_date = ?, disbursement_method = ?,
			status = ?, balance = ?,
			approved_by = ?, approved_at = ?, approval_notes = ?,
			rejected_by = ?, rejected_at = ?, rejection_reason = ?,
			notes = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`
	res, err := s.q.ExecContext(ctx, query,
		c.ApprovedAmount.String(), c.ApprovedTerm,
		c.RateConfigID, c.BaseRate.String(), c.AvalRate.String(), c.IVARate.String(), c.LateRate.String(),
		c.MonthlyPaymentBase.String(), c.MonthlyAval.String(), c.MonthlyIVAAval.String(), c.MonthlyPayment.String(),
		c.TotalAmount.String(), c.TotalInterest.String(), c.TotalAval.String(), c.TotalIVAAval.String(),
		nullDate(c.DisbursementDate), c.DisbursementMethod,
		string(c.Status), c.Balance.String(),
		c.ApprovedBy, nullTime(c.ApprovedAt), c.ApprovalNotes,
		c.RejectedBy, nullTime(c.RejectedAt), c.RejectionReason,
		c.Notes,
		c.UpdatedAt.Format(timeLayout),
		c.ID, c.Version,
	)
	if err != nil {
		return err
	}
	return bumpVersion(res, &c.Version, "credit "+c.Number)
}

func (s *session) UpdateCreditStatus(ctx context.Context, c *lending.Credit, status engine.CreditStatus) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.q.ExecContext(ctx,
		`UPDATE credits SET status = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		string(status), now, c.ID, c.Version)
	if err != nil {
		return err
	}
	if err := bumpVersion(res, &c.Version, "credit "+c.Number); err != nil {
		return err
	}
	c.Status = status
	return nil
}

func (s *session) GetCredit(ctx context.Context, id string) (*lending.Credit, error) {
	credits, err := s.queryCredits(ctx,
		`SELECT `+creditColumns+` FROM credits WHERE id = ?`, id)
	if err != nil || len(credits) == 0 {
		return nil, err
	}
	return &credits[0], nil
}

func (s *session) GetCreditByNumber(ctx context.Context, number string) (*lending.Credit, error) {
	credits, err := s.queryCredits(ctx,
		`SELECT `+creditColumns+` FROM credits WHERE number = ?`, number)
	if err != nil || len(credits) == 0 {
		return nil, err
	}
	return &credits[0], nil
}

func (s *session) ListCredits(ctx context.Context) ([]lending.Credit, error) {
	return s.queryCredits(ctx,
		`SELECT `+creditColumns+` FROM credits ORDER BY created_at DESC`)
}

func (s *session) ListCreditsByStatus(ctx context.Context, statuses ...engine.CreditStatus) ([]lending.Credit, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(statuses))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	return s.queryCredits(ctx,
		`SELECT `+creditColumns+` FROM credits WHERE status IN (`+placeholders+`) ORDER BY created_at`,
		args...)
}

func (s *session) MaxCreditSequence(ctx context.Context, year int) (int, error) {
	// Numbers are CR-<year>-NNNNN; the sequence is the last five digits.
	var max int
	err := s.q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(CAST(substr(number, -5) AS INTEGER)), 0)
		 FROM credits WHERE number LIKE ?`,
		fmt.Sprintf("CR-%d-%%", year),
	).Scan(&max)
	return max, err
}

func creditArgs(c *lending.Credit) []any {
	return []any{
		c.ID, c.Number, c.CustomerID, nullString(c.CompanyID),
		string(c.Type), string(c.Frequency),
		c.RequestedAmount.String(), c.RequestedTerm,
		c.ApprovedAmount.String(), c.ApprovedTerm,
		c.RateConfigID, c.BaseRate.String(), c.AvalRate.String(), c.IVARate.String(), c.LateRate.String(),
		c.MonthlyPaymentBase.String(), c.MonthlyAval.String(), c.MonthlyIVAAval.String(), c.MonthlyPayment.String(),
		c.TotalAmount.String(), c.TotalInterest.String(), c.TotalAval.String(), c.TotalIVAAval.String(),
		nullDate(c.DisbursementDate), c.DisbursementMethod,
		string(c.Status), c.Balance.String(),
		c.SalesAdvisor, c.ApprovedBy, nullTime(c.ApprovedAt), c.ApprovalNotes,
		c.RejectedBy, nullTime(c.RejectedAt), c.RejectionReason,
		c.Purpose, c.Notes,
		c.Version,
		c.CreatedAt.UTC().Format(timeLayout),
		c.UpdatedAt.UTC().Format(timeLayout),
	}
}

func (s *session) queryCredits(ctx context.Context, query string, args ...any) ([]lending.Credit, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var credits []lending.Credit
	for rows.Next() {
		var c lending.Credit
		var companyID, disbursementDate, approvedAt, rejectedAt sql.NullString
		var creditType, frequency, status string
		var requested, approved, baseRate, avalRate, ivaRate, lateRate string
		var mBase, mAval, mIVA, mTotal string
		var tAmount, tInterest, tAval, tIVA, balance string
		var createdAt, updatedAt string

		if err := rows.Scan(
			&c.ID, &c.Number, &c.CustomerID, &companyID, &creditType, &frequency,
			&requested, &c.RequestedTerm, &approved, &c.ApprovedTerm,
			&c.RateConfigID, &baseRate, &avalRate, &ivaRate, &lateRate,
			&mBase, &mAval, &mIVA, &mTotal,
			&tAmount, &tInterest, &tAval, &tIVA,
			&disbursementDate, &c.DisbursementMethod, &status, &balance,
			&c.SalesAdvisor, &c.ApprovedBy, &approvedAt, &c.ApprovalNotes,
			&c.RejectedBy, &rejectedAt, &c.RejectionReason,
			&c.Purpose, &c.Notes, &c.Version, &createdAt, &updatedAt,
		); err != nil {
			return nil, err
		}

		c.CompanyID = companyID.String
		c.Type = engine.CreditType(creditType)
		c.Frequency = lending.PaymentFrequency(frequency)
		c.RequestedAmount = dec(requested)
		c.ApprovedAmount = dec(approved)
		c.BaseRate = dec(baseRate)
		c.AvalRate = dec(avalRate)
		c.IVARate = dec(ivaRate)
		c.LateRate = dec(lateRate)
		c.MonthlyPaymentBase = dec(mBase)
		c.MonthlyAval = dec(mAval)
		c.MonthlyIVAAval = dec(mIVA)
		c.MonthlyPayment = dec(mTotal)
		c.TotalAmount = dec(tAmount)
		c.TotalInterest = dec(tInterest)
		c.TotalAval = dec(tAval)
		c.TotalIVAAval = dec(tIVA)
		c.Status = engine.CreditStatus(status)
		c.Balance = dec(balance)
		c.DisbursementDate = parseNullDate(disbursementDate)
		c.ApprovedAt = parseNullTime(approvedAt)
		c.RejectedAt = parseNullTime(rejectedAt)
		c.CreatedAt = parseTime(createdAt)
		c.UpdatedAt = parseTime(updatedAt)

		credits = append(credits, c)
	}
	return credits, rows.Err()
}

// =============================================================================
// INSTALLMENT STORE
// =============================================================================

const installmentColumns = `id, credit_id, number, due_date, payment_deadline, period_days,
	scheduled_capital, scheduled_interest, scheduled_aval, scheduled_iva_aval, scheduled_total,
	paid_capital, paid_interest, paid_aval, paid_iva_aval, paid_late_interest, paid_total,
	late_rate, late_interest_calculated, late_interest_applied, late_calculated_at, late_applied_at,
	balance_before, status, payment_date, version, created_at, updated_at`

// SaveInstallments bulk-inserts a generated schedule. Callers run it
// inside WithTx together with the credit update.
func (s *session) SaveInstallments(ctx context.Context, installments []engine.Installment) error {
	query := `
		INSERT INTO installments (` + installmentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
		        ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i := range installments {
		in := &installments[i]
		if in.Version == 0 {
			in.Version = 1
		}
		_, err := s.q.ExecContext(ctx, query,
			in.ID, in.CreditID, in.Number,
			in.DueDate.Format(dateLayout), in.PaymentDeadline.Format(dateLayout), in.PeriodDays,
			in.ScheduledCapital.String(), in.ScheduledInterest.String(),
			in.ScheduledAval.String(), in.ScheduledIVAAval.String(), in.ScheduledTotal.String(),
			in.PaidCapital.String(), in.PaidInterest.String(),
			in.PaidAval.String(), in.PaidIVAAval.String(),
			in.PaidLateInterest.String(), in.PaidTotal.String(),
			in.LateRate.String(), in.LateInterestCalculated.String(), in.LateInterestApplied.String(),
			nullTime(in.LateCalculatedAt), nullTime(in.LateAppliedAt),
			in.BalanceBefore.String(), string(in.Status), nullTime(in.PaymentDate),
			in.Version,
			in.CreatedAt.UTC().Format(timeLayout),
			in.UpdatedAt.UTC().Format(timeLayout),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("installment %d already exists for credit %s", in.Number, in.CreditID)
			}
			return fmt.Errorf("failed to insert installment %d: %w", in.Number, err)
		}
	}
	return nil
}

func (s *session) UpdateInstallment(ctx context.Context, in *engine.Installment) error {
	in.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE installments SET
			paid_capital = ?, paid_interest = ?, paid_aval = ?, paid_iva_aval = ?,
			paid_late_interest = ?, paid_total = ?,
			late_interest_calculated = ?, late_interest_applied = ?,
			late_calculated_at = ?, late_applied_at = ?,
			status = ?, payment_date = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`
	res, err := s.q.ExecContext(ctx, query,
		in.PaidCapital.String(), in.PaidInterest.String(),
		in.PaidAval.String(), in.PaidIVAAval.String(),
		in.PaidLateInterest.String(), in.PaidTotal.String(),
		in.LateInterestCalculated.String(), in.LateInterestApplied.String(),
		nullTime(in.LateCalculatedAt), nullTime(in.LateAppliedAt),
		string(in.Status), nullTime(in.PaymentDate),
		in.UpdatedAt.Format(timeLayout),
		in.ID, in.Version,
	)
	if err != nil {
		return err
	}
	return bumpVersion(res, &in.Version, fmt.Sprintf("installment %d", in.Number))
}

func (s *session) InstallmentsByCredit(ctx context.Context, creditID string) ([]engine.Installment, error) {
	return s.queryInstallments(ctx,
		`SELECT `+installmentColumns+` FROM installments WHERE credit_id = ? ORDER BY number`,
		creditID)
}

func (s *session) GetInstallment(ctx context.Context, creditID string, number int) (*engine.Installment, error) {
	installments, err := s.queryInstallments(ctx,
		`SELECT `+installmentColumns+` FROM installments WHERE credit_id = ? AND number = ?`,
		creditID, number)
	if err != nil || len(installments) == 0 {
		return nil, err
	}
	return &installments[0], nil
}

func (s *session) DeleteInstallmentsByCredit(ctx context.Context, creditID string) error {
	_, err := s.q.ExecContext(ctx,
		`DELETE FROM installments WHERE credit_id = ?`, creditID)
	return err
}

func (s *session) queryInstallments(ctx context.Context, query string, args ...any) ([]engine.Installment, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var installments []engine.Installment
	for rows.Next() {
		var in engine.Installment
		var dueDate, deadline string
		var sCap, sInt, sAval, sIVA, sTotal string
		var pCap, pInt, pAval, pIVA, pLate, pTotal string
		var lateRate, lateCalc, lateApplied, balanceBefore string
		var lateCalcAt, lateAppliedAt, paymentDate sql.NullString
		var status, createdAt, updatedAt string

		if err := rows.Scan(
			&in.ID, &in.CreditID, &in.Number, &dueDate, &deadline, &in.PeriodDays,
			&sCap, &sInt, &sAval, &sIVA, &sTotal,
			&pCap, &pInt, &pAval, &pIVA, &pLate, &pTotal,
			&lateRate, &lateCalc, &lateApplied, &lateCalcAt, &lateAppliedAt,
			&balanceBefore, &status, &paymentDate, &in.Version, &createdAt, &updatedAt,
		); err != nil {
			return nil, err
		}

		in.DueDate = parseDate(dueDate)
		in.PaymentDeadline = parseDate(deadline)
		in.ScheduledCapital = dec(sCap)
		in.ScheduledInterest = dec(sInt)
		in.ScheduledAval = dec(sAval)
		in.ScheduledIVAAval = dec(sIVA)
		in.ScheduledTotal = dec(sTotal)
		in.PaidCapital = dec(pCap)
		in.PaidInterest = dec(pInt)
		in.PaidAval = dec(pAval)
		in.PaidIVAAval = dec(pIVA)
		in.PaidLateInterest = dec(pLate)
		in.PaidTotal = dec(pTotal)
		in.LateRate = dec(lateRate)
		in.LateInterestCalculated = dec(lateCalc)
		in.LateInterestApplied = dec(lateApplied)
		in.LateCalculatedAt = parseNullTime(lateCalcAt)
		in.LateAppliedAt = parseNullTime(lateAppliedAt)
		in.BalanceBefore = dec(balanceBefore)
		in.Status = engine.InstallmentStatus(status)
		in.PaymentDate = parseNullTime(paymentDate)
		in.CreatedAt = parseTime(createdAt)
		in.UpdatedAt = parseTime(updatedAt)

		installments = append(installments, in)
	}
	return installments, rows.Err()
}

// =============================================================================
// TRANSACTION STORE (append-only)
// =============================================================================

const transactionColumns = `id, credit_id, installment_id, installment_number,
	amount, paid_at, method, reference,
	applied_late_interest, applied_interest, applied_aval, applied_iva_aval, applied_capital,
	recorded_by, notes, created_at`

func (s *session) AppendTransaction(ctx context.Context, tx *lending.PaymentTransaction) error {
	query := `
		INSERT INTO payment_transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.q.ExecContext(ctx, query,
		tx.ID, tx.CreditID, tx.InstallmentID, tx.InstallmentNumber,
		tx.Amount.String(), tx.PaidAt.Format(dateLayout), tx.Method, tx.Reference,
		tx.Applied.LateInterest.String(), tx.Applied.Interest.String(),
		tx.Applied.Aval.String(), tx.Applied.IVAAval.String(), tx.Applied.Capital.String(),
		tx.RecordedBy, tx.Notes,
		tx.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to append payment transaction: %w", err)
	}
	return nil
}

func (s *session) TransactionsByInstallment(ctx context.Context, installmentID string) ([]lending.PaymentTransaction, error) {
	return s.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM payment_transactions WHERE installment_id = ? ORDER BY id`,
		installmentID)
}

func (s *session) TransactionsByCredit(ctx context.Context, creditID string) ([]lending.PaymentTransaction, error) {
	return s.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM payment_transactions WHERE credit_id = ? ORDER BY id`,
		creditID)
}

func (s *session) CountTransactionsByCredit(ctx context.Context, creditID string) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payment_transactions WHERE credit_id = ?`, creditID,
	).Scan(&count)
	return count, err
}

// =============================================================================
// RESET
// =============================================================================

// Reset clears every table, children before parents so foreign keys hold.
// Demo scenario loading only.
func (s *session) Reset(ctx context.Context) error {
	tables := []string{
		"payment_transactions",
		"installments",
		"credits",
		"rate_configs",
		"companies",
		"customers",
	}
	for _, table := range tables {
		if _, err := s.q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

func (s *session) queryTransactions(ctx context.Context, query string, args ...any) ([]lending.PaymentTransaction, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []lending.PaymentTransaction
	for rows.Next() {
		var tx lending.PaymentTransaction
		var amount, paidAt string
		var aLate, aInt, aAval, aIVA, aCap string
		var createdAt string

		if err := rows.Scan(
			&tx.ID, &tx.CreditID, &tx.InstallmentID, &tx.InstallmentNumber,
			&amount, &paidAt, &tx.Method, &tx.Reference,
			&aLate, &aInt, &aAval, &aIVA, &aCap,
			&tx.RecordedBy, &tx.Notes, &createdAt,
		); err != nil {
			return nil, err
		}

		tx.Amount = dec(amount)
		tx.PaidAt = parseDate(paidAt)
		tx.Applied = engine.Allocation{
			LateInterest: dec(aLate),
			Interest:     dec(aInt),
			Aval:         dec(aAval),
			IVAAval:      dec(aIVA),
			Capital:      dec(aCap),
		}
		tx.CreatedAt = parseTime(createdAt)
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

// bumpVersion interprets the result of a version-guarded UPDATE: zero rows
// means another writer moved the row first.
func bumpVersion(res sql.Result, version *int64, what string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", what, engine.ErrConcurrentModification)
	}
	*version++
	return nil
}

func dec(s string) decimal.Decimal {
	if s == "" {
		return decimal.Decimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}
	}
	return d
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func parseDate(s string) time.Time {
	t, _ := time.Parse(dateLayout, s)
	return t
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, ns.String)
	if err != nil {
		t, err = time.Parse(dateLayout, ns.String)
		if err != nil {
			return nil
		}
	}
	return &t
}

func parseNullDate(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(dateLayout), Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
