/*
handlers.go - HTTP API handlers for the credit platform

PURPOSE:
  Exposes the lending service via REST API. Handles HTTP request/response,
  JSON serialization and validation, and delegates to domain logic.

ENDPOINTS:
  Customers:
    GET    /api/customers                  List customers
    POST   /api/customers                  Create customer

  Companies:
    GET    /api/companies                  List companies
    POST   /api/companies                  Create company

  Rates:
    GET    /api/rates                      List rate configurations
    POST   /api/rates                      Create a monthly configuration
    GET    /api/rates/resolve?date=        Resolve the config for a date

  Credits:
    GET    /api/credits                    List credits
    POST   /api/credits                    Create application (PENDING)
    GET    /api/credits/{number}           Credit detail
    POST   /api/credits/{number}/approve   Approve with rate snapshot
    POST   /api/credits/{number}/reject    Terminal rejection
    POST   /api/credits/{number}/cancel    Cancel before disbursement
    POST   /api/credits/{number}/disburse  Disburse and generate schedule
    POST   /api/credits/{number}/schedule/regenerate
    GET    /api/credits/{number}/schedule  Amortization schedule
    GET    /api/credits/{number}/summary   Ledger aggregates
    GET    /api/credits/{number}/transactions
    POST   /api/credits/{number}/payments  Record a payment
    GET    /api/credits/{number}/installments/{n}/late-interest
    POST   /api/credits/{number}/installments/{n}/late-interest
    POST   /api/credits/{number}/status/refresh

  Admin:
    POST   /api/admin/status/refresh       Sweep every collecting credit

  Scenarios (development only):
    GET    /api/scenarios                  List demo scenarios
    GET    /api/scenarios/current          Currently loaded scenario
    POST   /api/scenarios/load             Reset the DB and load a scenario

ERROR HANDLING:
  Domain errors map to HTTP status via the engine helpers:
  - 400: validation failures, invalid payment amounts, incomplete terms
  - 404: unknown credit/customer/rate config
  - 409: invalid lifecycle transition, concurrent modification (retry)
  - 500: everything else

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - lending/service.go: The operations these handlers call
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/libramoneda/credit-engine/engine"
	"github.com/libramoneda/credit-engine/lending"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service  *lending.Service
	Log      *logrus.Logger
	validate *validator.Validate

	// currentScenario tracks the last demo scenario loaded (scenarios.go).
	currentScenario string
}

// NewHandler creates a new handler over the lending service.
func NewHandler(svc *lending.Service, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.New()
	}
	return &Handler{
		Service:  svc,
		Log:      log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// decode parses and validates a JSON request body.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return h.validate.Struct(dst)
}

// =============================================================================
// CUSTOMER HANDLERS
// =============================================================================

// ListCustomers returns all customers.
// GET /api/customers
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.Service.Store.ListCustomers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list customers", err)
		return
	}

	dtos := make([]CustomerDTO, len(customers))
	for i := range customers {
		dtos[i] = toCustomerDTO(&customers[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCustomer creates a new customer.
// POST /api/customers
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	customer, err := h.Service.CreateCustomer(r.Context(), lending.Customer{
		IdentificationType:   req.IdentificationType,
		IdentificationNumber: req.IdentificationNumber,
		FirstName:            req.FirstName,
		LastName:             req.LastName,
		Phone:                req.Phone,
		Email:                req.Email,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to create customer", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCustomerDTO(customer))
}

// =============================================================================
// COMPANY HANDLERS
// =============================================================================

// ListCompanies returns all companies.
// GET /api/companies
func (h *Handler) ListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.Service.Store.ListCompanies(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list companies", err)
		return
	}

	dtos := make([]CompanyDTO, len(companies))
	for i := range companies {
		dtos[i] = toCompanyDTO(&companies[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCompany creates a new company.
// POST /api/companies
func (h *Handler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	var req CreateCompanyRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	company, err := h.Service.CreateCompany(r.Context(), lending.Company{
		NIT:          req.NIT,
		BusinessName: req.BusinessName,
		TradeName:    req.TradeName,
		PaymentDay:   req.PaymentDay,
		ContactName:  req.ContactName,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to create company", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCompanyDTO(company))
}

// =============================================================================
// RATE CONFIG HANDLERS
// =============================================================================

// ListRateConfigs returns all rate configurations, newest first.
// GET /api/rates
func (h *Handler) ListRateConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.Service.Store.ListRateConfigs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rate configs", err)
		return
	}

	dtos := make([]RateConfigDTO, len(configs))
	for i := range configs {
		dtos[i] = toRateConfigDTO(&configs[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRateConfig creates a monthly rate configuration.
// POST /api/rates
func (h *Handler) CreateRateConfig(w http.ResponseWriter, r *http.Request) {
	var req CreateRateConfigRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	input := lending.RateConfigInput{
		Year:         req.Year,
		Month:        time.Month(req.Month),
		UsuryRate:    req.UsuryRate,
		BaseRate:     req.BaseRate,
		AvalLibranza: req.AvalLibranza,
		AvalHigh:     req.AvalHigh,
		AvalLow:      req.AvalLow,
		IVARate:      req.IVARate,
		LateRate:     req.LateRate,
		Notes:        req.Notes,
		CreatedBy:    req.CreatedBy,
	}
	if req.EffectiveDate != "" {
		input.EffectiveDate, _ = time.Parse("2006-01-02", req.EffectiveDate)
	}

	rc, err := h.Service.CreateRateConfig(r.Context(), input)
	if err != nil {
		h.writeDomainError(w, "Failed to create rate config", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRateConfigDTO(rc))
}

// ResolveRateConfig returns the configuration in force for a date.
// GET /api/rates/resolve?date=2025-01-15
func (h *Handler) ResolveRateConfig(w http.ResponseWriter, r *http.Request) {
	reference := time.Now()
	if d := r.URL.Query().Get("date"); d != "" {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		reference = parsed
	}

	rc, err := h.Service.ResolveRate(r.Context(), reference)
	if err != nil {
		h.writeDomainError(w, "Failed to resolve rate config", err)
		return
	}
	writeJSON(w, http.StatusOK, toRateConfigDTO(rc))
}

// =============================================================================
// CREDIT LIFECYCLE HANDLERS
// =============================================================================

// ListCredits returns all credits, optionally filtered by status.
// GET /api/credits?status=ACTIVE
func (h *Handler) ListCredits(w http.ResponseWriter, r *http.Request) {
	var credits []lending.Credit
	var err error

	if status := r.URL.Query().Get("status"); status != "" {
		credits, err = h.Service.Store.ListCreditsByStatus(r.Context(), engine.CreditStatus(status))
	} else {
		credits, err = h.Service.Store.ListCredits(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list credits", err)
		return
	}

	dtos := make([]CreditDTO, len(credits))
	for i := range credits {
		dtos[i] = toCreditDTO(&credits[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCredit registers a PENDING application.
// POST /api/credits
func (h *Handler) CreateCredit(w http.ResponseWriter, r *http.Request) {
	var req CreateCreditRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	credit, err := h.Service.CreateCredit(r.Context(), lending.CreditApplication{
		CustomerID:      req.CustomerID,
		CompanyID:       req.CompanyID,
		Type:            engine.CreditType(req.Type),
		Frequency:       lending.PaymentFrequency(req.Frequency),
		RequestedAmount: req.RequestedAmount,
		RequestedTerm:   req.RequestedTerm,
		Purpose:         req.Purpose,
		SalesAdvisor:    req.SalesAdvisor,
		Notes:           req.Notes,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to create credit", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCreditDTO(credit))
}

// GetCredit returns one credit by number.
// GET /api/credits/{number}
func (h *Handler) GetCredit(w http.ResponseWriter, r *http.Request) {
	credit, err := h.Service.GetCredit(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.writeDomainError(w, "Failed to get credit", err)
		return
	}
	writeJSON(w, http.StatusOK, toCreditDTO(credit))
}

// ApproveCredit approves a pending application.
// POST /api/credits/{number}/approve
func (h *Handler) ApproveCredit(w http.ResponseWriter, r *http.Request) {
	var req ApproveCreditRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	credit, err := h.Service.ApproveCredit(r.Context(), chi.URLParam(r, "number"), lending.ApprovalInput{
		Amount:     req.Amount,
		Term:       req.Term,
		ApprovedBy: req.ApprovedBy,
		Notes:      req.Notes,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to approve credit", err)
		return
	}
	writeJSON(w, http.StatusOK, toCreditDTO(credit))
}

// RejectCredit rejects a pending application.
// POST /api/credits/{number}/reject
func (h *Handler) RejectCredit(w http.ResponseWriter, r *http.Request) {
	var req RejectCreditRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	credit, err := h.Service.RejectCredit(r.Context(), chi.URLParam(r, "number"), req.RejectedBy, req.Reason)
	if err != nil {
		h.writeDomainError(w, "Failed to reject credit", err)
		return
	}
	writeJSON(w, http.StatusOK, toCreditDTO(credit))
}

// CancelCredit cancels before money moves.
// POST /api/credits/{number}/cancel
func (h *Handler) CancelCredit(w http.ResponseWriter, r *http.Request) {
	var req CancelCreditRequest
	if r.ContentLength > 0 {
		if err := h.decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	credit, err := h.Service.CancelCredit(r.Context(), chi.URLParam(r, "number"), req.Reason)
	if err != nil {
		h.writeDomainError(w, "Failed to cancel credit", err)
		return
	}
	writeJSON(w, http.StatusOK, toCreditDTO(credit))
}

// DisburseCredit disburses an approved credit and generates its schedule.
// POST /api/credits/{number}/disburse
func (h *Handler) DisburseCredit(w http.ResponseWriter, r *http.Request) {
	var req DisburseCreditRequest
	if r.ContentLength > 0 {
		if err := h.decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	input := lending.DisbursementInput{Method: req.Method}
	if req.Date != "" {
		input.Date, _ = time.Parse("2006-01-02", req.Date)
	}

	credit, err := h.Service.DisburseCredit(r.Context(), chi.URLParam(r, "number"), input)
	if err != nil {
		h.writeDomainError(w, "Failed to disburse credit", err)
		return
	}
	writeJSON(w, http.StatusOK, toCreditDTO(credit))
}

// =============================================================================
// SCHEDULE HANDLERS
// =============================================================================

// GetSchedule returns the amortization schedule.
// GET /api/credits/{number}/schedule
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	installments, err := h.Service.Schedule(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.writeDomainError(w, "Failed to get schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, toInstallmentDTOs(installments))
}

// RegenerateSchedule rebuilds the schedule before any payment exists.
// POST /api/credits/{number}/schedule/regenerate
func (h *Handler) RegenerateSchedule(w http.ResponseWriter, r *http.Request) {
	credit, err := h.Service.RegenerateSchedule(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.writeDomainError(w, "Failed to regenerate schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, toCreditDTO(credit))
}

// GetSummary returns the credit's ledger aggregates.
// GET /api/credits/{number}/summary
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Service.Summary(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.writeDomainError(w, "Failed to get summary", err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(summary))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// RecordPayment applies cash to an installment.
// POST /api/credits/{number}/payments
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	input := lending.RecordPaymentInput{
		Amount:     req.Amount,
		Method:     req.Method,
		Reference:  req.Reference,
		RecordedBy: req.RecordedBy,
		Notes:      req.Notes,
	}
	if req.Date != "" {
		input.Date, _ = time.Parse("2006-01-02", req.Date)
	}

	tx, err := h.Service.RecordPayment(r.Context(), chi.URLParam(r, "number"), req.InstallmentNumber, input)
	if err != nil {
		h.writeDomainError(w, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// GetTransactions returns the credit's payment audit trail.
// GET /api/credits/{number}/transactions
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Service.Transactions(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.writeDomainError(w, "Failed to get transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// =============================================================================
// LATE INTEREST HANDLERS
// =============================================================================

// PreviewLateInterest computes accrual without persisting anything.
// GET /api/credits/{number}/installments/{n}/late-interest?as_of=2025-03-15
func (h *Handler) PreviewLateInterest(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	installment, ok := h.installmentNumber(w, r)
	if !ok {
		return
	}
	asOf, ok := h.asOfParam(w, r)
	if !ok {
		return
	}

	amount, err := h.Service.PreviewLateInterest(r.Context(), number, installment, asOf)
	if err != nil {
		h.writeDomainError(w, "Failed to preview late interest", err)
		return
	}
	writeJSON(w, http.StatusOK, LateInterestDTO{
		CreditNumber:      number,
		InstallmentNumber: installment,
		AsOf:              asOf.Format("2006-01-02"),
		Amount:            amount,
	})
}

// ApplyLateInterest books accrued late interest onto the installment.
// POST /api/credits/{number}/installments/{n}/late-interest
func (h *Handler) ApplyLateInterest(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	installment, ok := h.installmentNumber(w, r)
	if !ok {
		return
	}
	asOf, ok := h.asOfParam(w, r)
	if !ok {
		return
	}

	amount, err := h.Service.ApplyLateInterest(r.Context(), number, installment, asOf)
	if err != nil {
		h.writeDomainError(w, "Failed to apply late interest", err)
		return
	}
	writeJSON(w, http.StatusOK, LateInterestDTO{
		CreditNumber:      number,
		InstallmentNumber: installment,
		AsOf:              asOf.Format("2006-01-02"),
		Amount:            amount,
	})
}

// =============================================================================
// STATUS HANDLERS
// =============================================================================

// RefreshCreditStatus re-derives one credit's lifecycle status.
// POST /api/credits/{number}/status/refresh
func (h *Handler) RefreshCreditStatus(w http.ResponseWriter, r *http.Request) {
	credit, changed, err := h.Service.RefreshCreditStatus(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.writeDomainError(w, "Failed to refresh credit status", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"credit":  toCreditDTO(credit),
		"changed": changed,
	})
}

// RefreshAllStatuses sweeps every collecting credit.
// POST /api/admin/status/refresh
func (h *Handler) RefreshAllStatuses(w http.ResponseWriter, r *http.Request) {
	changed, err := h.Service.RefreshAllCreditStatuses(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to refresh credit statuses", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"changed": changed})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) installmentNumber(w http.ResponseWriter, r *http.Request) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || n <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid installment number", err)
		return 0, false
	}
	return n, true
}

func (h *Handler) asOfParam(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	asOf := time.Now()
	if d := r.URL.Query().Get("as_of"); d != "" {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of format (use YYYY-MM-DD)", err)
			return time.Time{}, false
		}
		asOf = parsed
	}
	return asOf, true
}

// writeDomainError classifies a service error into an HTTP status.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case engine.IsRetryable(err):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, engine.ErrInvalidTransition):
		writeError(w, http.StatusConflict, message, err)
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.Log.WithError(err).Error(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
