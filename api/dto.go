/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Monetary amounts ride as decimal.Decimal, which marshals to quoted
  strings ("938641"). Clients must not parse them as floats.

VALIDATION:
  Request types carry go-playground/validator tags; handlers run the
  shared validator after decoding and reject with 400 on failure.

SEE ALSO:
  - handlers.go: Uses these types
  - lending/types.go: The domain model these map from
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/libramoneda/credit-engine/engine"
	"github.com/libramoneda/credit-engine/lending"
)

// =============================================================================
// CUSTOMER / COMPANY
// =============================================================================

type CustomerDTO struct {
	ID                   string `json:"id"`
	IdentificationType   string `json:"identification_type"`
	IdentificationNumber string `json:"identification_number"`
	FirstName            string `json:"first_name"`
	LastName             string `json:"last_name"`
	FullName             string `json:"full_name"`
	Phone                string `json:"phone,omitempty"`
	Email                string `json:"email,omitempty"`
	CreatedAt            string `json:"created_at,omitempty"`
}

type CreateCustomerRequest struct {
	IdentificationType   string `json:"identification_type"`
	IdentificationNumber string `json:"identification_number" validate:"required"`
	FirstName            string `json:"first_name" validate:"required"`
	LastName             string `json:"last_name"`
	Phone                string `json:"phone"`
	Email                string `json:"email" validate:"omitempty,email"`
}

type CompanyDTO struct {
	ID           string `json:"id"`
	NIT          string `json:"nit"`
	BusinessName string `json:"business_name"`
	TradeName    string `json:"trade_name,omitempty"`
	PaymentDay   int    `json:"payment_day"`
	ContactName  string `json:"contact_name,omitempty"`
	Active       bool   `json:"active"`
	CreatedAt    string `json:"created_at,omitempty"`
}

type CreateCompanyRequest struct {
	NIT          string `json:"nit" validate:"required"`
	BusinessName string `json:"business_name" validate:"required"`
	TradeName    string `json:"trade_name"`
	PaymentDay   int    `json:"payment_day" validate:"required,gte=1,lte=31"`
	ContactName  string `json:"contact_name"`
}

// =============================================================================
// RATE CONFIGURATION
// =============================================================================

type RateConfigDTO struct {
	ID               string          `json:"id"`
	Year             int             `json:"year"`
	Month            int             `json:"month"`
	UsuryRate        decimal.Decimal `json:"usury_rate"`
	BaseRate         decimal.Decimal `json:"base_rate"`
	AvalRateLibranza decimal.Decimal `json:"aval_rate_libranza"`
	AvalRateHigh     decimal.Decimal `json:"aval_rate_high"`
	AvalRateLow      decimal.Decimal `json:"aval_rate_low"`
	IVARate          decimal.Decimal `json:"iva_rate"`
	LateRate         decimal.Decimal `json:"late_rate"`
	Active           bool            `json:"active"`
	EffectiveDate    string          `json:"effective_date"`
	Notes            string          `json:"notes,omitempty"`
	CreatedBy        string          `json:"created_by,omitempty"`
}

type CreateRateConfigRequest struct {
	Year          int             `json:"year" validate:"required,gte=2000"`
	Month         int             `json:"month" validate:"required,gte=1,lte=12"`
	UsuryRate     decimal.Decimal `json:"usury_rate"`
	BaseRate      decimal.Decimal `json:"base_rate"`
	AvalLibranza  decimal.Decimal `json:"aval_rate_libranza"`
	AvalHigh      decimal.Decimal `json:"aval_rate_high"`
	AvalLow       decimal.Decimal `json:"aval_rate_low"`
	IVARate       decimal.Decimal `json:"iva_rate"`
	LateRate      decimal.Decimal `json:"late_rate"`
	EffectiveDate string          `json:"effective_date" validate:"omitempty,datetime=2006-01-02"`
	Notes         string          `json:"notes"`
	CreatedBy     string          `json:"created_by"`
}

// =============================================================================
// CREDIT
// =============================================================================

type CreditDTO struct {
	ID         string `json:"id"`
	Number     string `json:"number"`
	CustomerID string `json:"customer_id"`
	CompanyID  string `json:"company_id,omitempty"`
	Type       string `json:"credit_type"`
	Frequency  string `json:"payment_frequency"`

	RequestedAmount decimal.Decimal `json:"requested_amount"`
	RequestedTerm   int             `json:"requested_term"`
	ApprovedAmount  decimal.Decimal `json:"approved_amount"`
	ApprovedTerm    int             `json:"approved_term"`

	BaseRate decimal.Decimal `json:"base_rate"`
	AvalRate decimal.Decimal `json:"aval_rate"`
	IVARate  decimal.Decimal `json:"iva_rate"`
	LateRate decimal.Decimal `json:"late_rate"`

	MonthlyPaymentBase decimal.Decimal `json:"monthly_payment_base"`
	MonthlyAval        decimal.Decimal `json:"monthly_aval"`
	MonthlyIVAAval     decimal.Decimal `json:"monthly_iva_aval"`
	MonthlyPayment     decimal.Decimal `json:"monthly_payment"`

	TotalAmount   decimal.Decimal `json:"total_amount"`
	TotalInterest decimal.Decimal `json:"total_interest"`
	TotalAval     decimal.Decimal `json:"total_aval"`
	TotalIVAAval  decimal.Decimal `json:"total_iva_aval"`

	DisbursementDate   string `json:"disbursement_date,omitempty"`
	DisbursementMethod string `json:"disbursement_method,omitempty"`

	Status  string          `json:"status"`
	Balance decimal.Decimal `json:"balance"`

	SalesAdvisor    string `json:"sales_advisor,omitempty"`
	ApprovedBy      string `json:"approved_by,omitempty"`
	ApprovedAt      string `json:"approved_at,omitempty"`
	RejectedBy      string `json:"rejected_by,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`

	Purpose   string `json:"purpose,omitempty"`
	Notes     string `json:"notes,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type CreateCreditRequest struct {
	CustomerID      string          `json:"customer_id" validate:"required"`
	CompanyID       string          `json:"company_id"`
	Type            string          `json:"credit_type" validate:"required,oneof=LIBRANZA NATURAL"`
	Frequency       string          `json:"payment_frequency" validate:"omitempty,oneof=MONTHLY BIWEEKLY WEEKLY"`
	RequestedAmount decimal.Decimal `json:"requested_amount" validate:"required"`
	RequestedTerm   int             `json:"requested_term" validate:"required,gt=0"`
	Purpose         string          `json:"purpose"`
	SalesAdvisor    string          `json:"sales_advisor"`
	Notes           string          `json:"notes"`
}

type ApproveCreditRequest struct {
	Amount     decimal.Decimal `json:"approved_amount"`
	Term       int             `json:"approved_term" validate:"omitempty,gt=0"`
	ApprovedBy string          `json:"approved_by" validate:"required"`
	Notes      string          `json:"notes"`
}

type RejectCreditRequest struct {
	RejectedBy string `json:"rejected_by" validate:"required"`
	Reason     string `json:"reason" validate:"required"`
}

type CancelCreditRequest struct {
	Reason string `json:"reason"`
}

type DisburseCreditRequest struct {
	Date   string `json:"disbursement_date" validate:"omitempty,datetime=2006-01-02"`
	Method string `json:"disbursement_method"`
}

// =============================================================================
// INSTALLMENTS AND PAYMENTS
// =============================================================================

type InstallmentDTO struct {
	ID              string `json:"id"`
	Number          int    `json:"number"`
	DueDate         string `json:"due_date"`
	PaymentDeadline string `json:"payment_deadline"`
	PeriodDays      int    `json:"period_days"`

	ScheduledCapital  decimal.Decimal `json:"scheduled_capital"`
	ScheduledInterest decimal.Decimal `json:"scheduled_interest"`
	ScheduledAval     decimal.Decimal `json:"scheduled_aval"`
	ScheduledIVAAval  decimal.Decimal `json:"scheduled_iva_aval"`
	ScheduledTotal    decimal.Decimal `json:"scheduled_total"`

	PaidCapital      decimal.Decimal `json:"paid_capital"`
	PaidInterest     decimal.Decimal `json:"paid_interest"`
	PaidAval         decimal.Decimal `json:"paid_aval"`
	PaidIVAAval      decimal.Decimal `json:"paid_iva_aval"`
	PaidLateInterest decimal.Decimal `json:"paid_late_interest"`
	PaidTotal        decimal.Decimal `json:"paid_total"`

	LateInterestApplied decimal.Decimal `json:"late_interest_applied"`
	RemainingTotal      decimal.Decimal `json:"remaining_total"`
	BalanceBefore       decimal.Decimal `json:"balance_before"`

	Status      string `json:"status"`
	PaymentDate string `json:"payment_date,omitempty"`
}

type RecordPaymentRequest struct {
	InstallmentNumber int             `json:"installment_number" validate:"required,gt=0"`
	Amount            decimal.Decimal `json:"amount" validate:"required"`
	Date              string          `json:"payment_date" validate:"omitempty,datetime=2006-01-02"`
	Method            string          `json:"method"`
	Reference         string          `json:"reference"`
	RecordedBy        string          `json:"recorded_by"`
	Notes             string          `json:"notes"`
}

type TransactionDTO struct {
	ID                string          `json:"id"`
	CreditID          string          `json:"credit_id"`
	InstallmentNumber int             `json:"installment_number"`
	Amount            decimal.Decimal `json:"amount"`
	PaidAt            string          `json:"paid_at"`
	Method            string          `json:"method,omitempty"`
	Reference         string          `json:"reference,omitempty"`

	AppliedLateInterest decimal.Decimal `json:"applied_late_interest"`
	AppliedInterest     decimal.Decimal `json:"applied_interest"`
	AppliedAval         decimal.Decimal `json:"applied_aval"`
	AppliedIVAAval      decimal.Decimal `json:"applied_iva_aval"`
	AppliedCapital      decimal.Decimal `json:"applied_capital"`

	RecordedBy string `json:"recorded_by,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

type LateInterestDTO struct {
	CreditNumber      string          `json:"credit_number"`
	InstallmentNumber int             `json:"installment_number"`
	AsOf              string          `json:"as_of"`
	Amount            decimal.Decimal `json:"amount"`
}

type CreditSummaryDTO struct {
	CreditNumber       string          `json:"credit_number"`
	Status             string          `json:"status"`
	Balance            decimal.Decimal `json:"balance"`
	InstallmentCount   int             `json:"installment_count"`
	PaidInstallments   int             `json:"paid_installments"`
	MaxDaysOverdue     int             `json:"max_days_overdue"`
	TotalOverdueAmount decimal.Decimal `json:"total_overdue_amount"`
	TotalPaid          decimal.Decimal `json:"total_paid"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toCustomerDTO(c *lending.Customer) CustomerDTO {
	return CustomerDTO{
		ID:                   c.ID,
		IdentificationType:   c.IdentificationType,
		IdentificationNumber: c.IdentificationNumber,
		FirstName:            c.FirstName,
		LastName:             c.LastName,
		FullName:             c.FullName(),
		Phone:                c.Phone,
		Email:                c.Email,
		CreatedAt:            c.CreatedAt.Format(time.RFC3339),
	}
}

func toCompanyDTO(c *lending.Company) CompanyDTO {
	return CompanyDTO{
		ID:           c.ID,
		NIT:          c.NIT,
		BusinessName: c.BusinessName,
		TradeName:    c.TradeName,
		PaymentDay:   c.PaymentDay,
		ContactName:  c.ContactName,
		Active:       c.Active,
		CreatedAt:    c.CreatedAt.Format(time.RFC3339),
	}
}

func toRateConfigDTO(rc *engine.RateConfig) RateConfigDTO {
	return RateConfigDTO{
		ID:               rc.ID,
		Year:             rc.Year,
		Month:            int(rc.Month),
		UsuryRate:        rc.UsuryRate,
		BaseRate:         rc.BaseRate,
		AvalRateLibranza: rc.AvalRateLibranza,
		AvalRateHigh:     rc.AvalRateHigh,
		AvalRateLow:      rc.AvalRateLow,
		IVARate:          rc.IVARate,
		LateRate:         rc.LateRate,
		Active:           rc.Active,
		EffectiveDate:    rc.EffectiveDate.Format("2006-01-02"),
		Notes:            rc.Notes,
		CreatedBy:        rc.CreatedBy,
	}
}

func toCreditDTO(c *lending.Credit) CreditDTO {
	dto := CreditDTO{
		ID:                 c.ID,
		Number:             c.Number,
		CustomerID:         c.CustomerID,
		CompanyID:          c.CompanyID,
		Type:               string(c.Type),
		Frequency:          string(c.Frequency),
		RequestedAmount:    c.RequestedAmount,
		RequestedTerm:      c.RequestedTerm,
		ApprovedAmount:     c.ApprovedAmount,
		ApprovedTerm:       c.ApprovedTerm,
		BaseRate:           c.BaseRate,
		AvalRate:           c.AvalRate,
		IVARate:            c.IVARate,
		LateRate:           c.LateRate,
		MonthlyPaymentBase: c.MonthlyPaymentBase,
		MonthlyAval:        c.MonthlyAval,
		MonthlyIVAAval:     c.MonthlyIVAAval,
		MonthlyPayment:     c.MonthlyPayment,
		TotalAmount:        c.TotalAmount,
		TotalInterest:      c.TotalInterest,
		TotalAval:          c.TotalAval,
		TotalIVAAval:       c.TotalIVAAval,
		DisbursementMethod: c.DisbursementMethod,
		Status:             string(c.Status),
		Balance:            c.Balance,
		SalesAdvisor:       c.SalesAdvisor,
		ApprovedBy:         c.ApprovedBy,
		RejectedBy:         c.RejectedBy,
		RejectionReason:    c.RejectionReason,
		Purpose:            c.Purpose,
		Notes:              c.Notes,
		CreatedAt:          c.CreatedAt.Format(time.RFC3339),
	}
	if c.DisbursementDate != nil {
		dto.DisbursementDate = c.DisbursementDate.Format("2006-01-02")
	}
	if c.ApprovedAt != nil {
		dto.ApprovedAt = c.ApprovedAt.Format(time.RFC3339)
	}
	return dto
}

func toInstallmentDTO(in *engine.Installment) InstallmentDTO {
	dto := InstallmentDTO{
		ID:                  in.ID,
		Number:              in.Number,
		DueDate:             in.DueDate.Format("2006-01-02"),
		PaymentDeadline:     in.PaymentDeadline.Format("2006-01-02"),
		PeriodDays:          in.PeriodDays,
		ScheduledCapital:    in.ScheduledCapital,
		ScheduledInterest:   in.ScheduledInterest,
		ScheduledAval:       in.ScheduledAval,
		ScheduledIVAAval:    in.ScheduledIVAAval,
		ScheduledTotal:      in.ScheduledTotal,
		PaidCapital:         in.PaidCapital,
		PaidInterest:        in.PaidInterest,
		PaidAval:            in.PaidAval,
		PaidIVAAval:         in.PaidIVAAval,
		PaidLateInterest:    in.PaidLateInterest,
		PaidTotal:           in.PaidTotal,
		LateInterestApplied: in.LateInterestApplied,
		RemainingTotal:      in.RemainingTotal(),
		BalanceBefore:       in.BalanceBefore,
		Status:              string(in.Status),
	}
	if in.PaymentDate != nil {
		dto.PaymentDate = in.PaymentDate.Format("2006-01-02")
	}
	return dto
}

func toInstallmentDTOs(installments []engine.Installment) []InstallmentDTO {
	dtos := make([]InstallmentDTO, len(installments))
	for i := range installments {
		dtos[i] = toInstallmentDTO(&installments[i])
	}
	return dtos
}

func toTransactionDTO(tx *lending.PaymentTransaction) TransactionDTO {
	return TransactionDTO{
		ID:                  tx.ID,
		CreditID:            tx.CreditID,
		InstallmentNumber:   tx.InstallmentNumber,
		Amount:              tx.Amount,
		PaidAt:              tx.PaidAt.Format("2006-01-02"),
		Method:              tx.Method,
		Reference:           tx.Reference,
		AppliedLateInterest: tx.Applied.LateInterest,
		AppliedInterest:     tx.Applied.Interest,
		AppliedAval:         tx.Applied.Aval,
		AppliedIVAAval:      tx.Applied.IVAAval,
		AppliedCapital:      tx.Applied.Capital,
		RecordedBy:          tx.RecordedBy,
		CreatedAt:           tx.CreatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTOs(txs []lending.PaymentTransaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i := range txs {
		dtos[i] = toTransactionDTO(&txs[i])
	}
	return dtos
}

func toSummaryDTO(s *lending.CreditSummary) CreditSummaryDTO {
	return CreditSummaryDTO{
		CreditNumber:       s.CreditNumber,
		Status:             string(s.Status),
		Balance:            s.Balance,
		InstallmentCount:   s.InstallmentCount,
		PaidInstallments:   s.PaidInstallments,
		MaxDaysOverdue:     s.MaxDaysOverdue,
		TotalOverdueAmount: s.TotalOverdueAmount,
		TotalPaid:          s.TotalPaid,
	}
}
