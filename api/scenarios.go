/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates customers, companies,
	rate configurations, and credits that demonstrate specific features.

AVAILABLE SCENARIOS:

	fresh-libranza:  One payroll-deduction credit just disbursed, no payments
	collections:     A credit four months into collection with an overdue
	                 installment and applied late interest
	portfolio:       Credits across the lifecycle (pending, rejected,
	                 approved, active)

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create the rate configuration in force
 3. Create customers and companies
 4. Walk credits through application, approval, disbursement
 5. Optionally record payments and late interest

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - server.go: /api/scenarios routes
  - lending/service.go: The operations the loaders drive
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/libramoneda/credit-engine/engine"
	"github.com/libramoneda/credit-engine/lending"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-libranza",
		Name:        "Fresh Libranza",
		Description: "One payroll-deduction credit just disbursed, nothing paid yet",
		Category:    "lending",
	},
	{
		ID:          "collections",
		Name:        "Collections",
		Description: "Credit four months into collection with an overdue installment and late interest",
		Category:    "collections",
	},
	{
		ID:          "portfolio",
		Name:        "Portfolio",
		Description: "Credits across the lifecycle: pending, rejected, approved, active",
		Category:    "lending",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario resets the database and loads a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	if err := h.Service.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	var err error
	switch req.ScenarioID {
	case "fresh-libranza":
		err = h.loadFreshLibranza(ctx)
	case "collections":
		err = h.loadCollections(ctx)
	case "portfolio":
		err = h.loadPortfolio(ctx)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scenario: %s", req.ScenarioID), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

// =============================================================================
// SEEDING HELPERS
// =============================================================================

// seedRates installs the configuration in force for the current month so
// approvals resolve. Base rate left to derive from the usury ceiling.
func (h *Handler) seedRates(ctx context.Context) error {
	now := h.Service.Now()
	_, err := h.Service.CreateRateConfig(ctx, lending.RateConfigInput{
		Year:      now.Year(),
		Month:     now.Month(),
		UsuryRate: decimal.RequireFromString("25.01"),
		// Backdated so past disbursements resolve against it too.
		EffectiveDate: now.AddDate(-1, 0, 0),
		Notes:         "demo scenario",
		CreatedBy:     "scenario-loader",
	})
	return err
}

func (h *Handler) seedCustomer(ctx context.Context, id, first, last string) (*lending.Customer, error) {
	return h.Service.CreateCustomer(ctx, lending.Customer{
		IdentificationType:   "CC",
		IdentificationNumber: id,
		FirstName:            first,
		LastName:             last,
		Email:                fmt.Sprintf("%s.%s@example.com", first, last),
	})
}

func (h *Handler) seedCompany(ctx context.Context, nit, name string, paymentDay int) (*lending.Company, error) {
	return h.Service.CreateCompany(ctx, lending.Company{
		NIT:          nit,
		BusinessName: name,
		PaymentDay:   paymentDay,
		ContactName:  "Nómina",
	})
}

// payInstallmentsInFull records one full payment per installment number,
// dated at each installment's payment deadline.
func (h *Handler) payInstallmentsInFull(ctx context.Context, number string, upTo int) error {
	schedule, err := h.Service.Schedule(ctx, number)
	if err != nil {
		return err
	}
	for i := range schedule {
		if schedule[i].Number > upTo {
			break
		}
		_, err := h.Service.RecordPayment(ctx, number, schedule[i].Number, lending.RecordPaymentInput{
			Amount:     schedule[i].ScheduledTotal,
			Date:       schedule[i].PaymentDeadline,
			Method:     "PAYROLL",
			Reference:  fmt.Sprintf("NOM-%s", schedule[i].PaymentDeadline.Format("2006-01")),
			RecordedBy: "scenario-loader",
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadFreshLibranza(ctx context.Context) error {
	if err := h.seedRates(ctx); err != nil {
		return err
	}
	customer, err := h.seedCustomer(ctx, "1012345678", "Marta", "Quintero")
	if err != nil {
		return err
	}
	company, err := h.seedCompany(ctx, "900123456-7", "Transportes Andinos SAS", 15)
	if err != nil {
		return err
	}

	credit, err := h.Service.CreateCredit(ctx, lending.CreditApplication{
		CustomerID:      customer.ID,
		CompanyID:       company.ID,
		Type:            engine.CreditLibranza,
		RequestedAmount: decimal.NewFromInt(8_000_000),
		RequestedTerm:   12,
		Purpose:         "educación",
		SalesAdvisor:    "asesor-demo",
	})
	if err != nil {
		return err
	}
	if _, err := h.Service.ApproveCredit(ctx, credit.Number, lending.ApprovalInput{ApprovedBy: "analista-demo"}); err != nil {
		return err
	}
	_, err = h.Service.DisburseCredit(ctx, credit.Number, lending.DisbursementInput{Method: "TRANSFER"})
	return err
}

func (h *Handler) loadCollections(ctx context.Context) error {
	if err := h.seedRates(ctx); err != nil {
		return err
	}
	customer, err := h.seedCustomer(ctx, "1098765432", "Jairo", "Betancur")
	if err != nil {
		return err
	}
	company, err := h.seedCompany(ctx, "901987654-3", "Clínica del Oriente SA", 15)
	if err != nil {
		return err
	}

	credit, err := h.Service.CreateCredit(ctx, lending.CreditApplication{
		CustomerID:      customer.ID,
		CompanyID:       company.ID,
		Type:            engine.CreditLibranza,
		RequestedAmount: decimal.NewFromInt(10_000_000),
		RequestedTerm:   12,
		Purpose:         "consolidación de deudas",
		SalesAdvisor:    "asesor-demo",
	})
	if err != nil {
		return err
	}
	if _, err := h.Service.ApproveCredit(ctx, credit.Number, lending.ApprovalInput{ApprovedBy: "analista-demo"}); err != nil {
		return err
	}

	// Four months of history: two installments paid on time, the third
	// left overdue with late interest booked.
	now := h.Service.Now()
	if _, err := h.Service.DisburseCredit(ctx, credit.Number, lending.DisbursementInput{
		Date:   now.AddDate(0, -4, 0),
		Method: "TRANSFER",
	}); err != nil {
		return err
	}
	if err := h.payInstallmentsInFull(ctx, credit.Number, 2); err != nil {
		return err
	}
	if _, err := h.Service.ApplyLateInterest(ctx, credit.Number, 3, now); err != nil {
		return err
	}
	_, _, err = h.Service.RefreshCreditStatus(ctx, credit.Number)
	return err
}

func (h *Handler) loadPortfolio(ctx context.Context) error {
	if err := h.seedRates(ctx); err != nil {
		return err
	}
	company, err := h.seedCompany(ctx, "900555111-2", "Agroindustrias del Valle SAS", 30)
	if err != nil {
		return err
	}

	type seed struct {
		id, first, last string
		app             lending.CreditApplication
		run             func(number string) error
	}

	seeds := []seed{
		{
			id: "1020304050", first: "Lucía", last: "Pardo",
			app: lending.CreditApplication{
				CompanyID: company.ID, Type: engine.CreditLibranza,
				RequestedAmount: decimal.NewFromInt(3_500_000), RequestedTerm: 18,
			},
			// Left PENDING.
			run: func(string) error { return nil },
		},
		{
			id: "1030405060", first: "Andrés", last: "Mejía",
			app: lending.CreditApplication{
				Type:            engine.CreditNatural,
				RequestedAmount: decimal.NewFromInt(6_000_000), RequestedTerm: 24,
			},
			run: func(number string) error {
				_, err := h.Service.RejectCredit(ctx, number, "analista-demo", "capacidad de pago insuficiente")
				return err
			},
		},
		{
			id: "1040506070", first: "Paola", last: "Restrepo",
			app: lending.CreditApplication{
				CompanyID: company.ID, Type: engine.CreditLibranza,
				RequestedAmount: decimal.NewFromInt(5_000_000), RequestedTerm: 12,
			},
			run: func(number string) error {
				_, err := h.Service.ApproveCredit(ctx, number, lending.ApprovalInput{ApprovedBy: "analista-demo"})
				return err
			},
		},
		{
			id: "1050607080", first: "Camilo", last: "Arango",
			app: lending.CreditApplication{
				Type:            engine.CreditNatural,
				RequestedAmount: decimal.NewFromInt(2_000_000), RequestedTerm: 6,
			},
			run: func(number string) error {
				if _, err := h.Service.ApproveCredit(ctx, number, lending.ApprovalInput{ApprovedBy: "analista-demo"}); err != nil {
					return err
				}
				if _, err := h.Service.DisburseCredit(ctx, number, lending.DisbursementInput{
					Date:   h.Service.Now().AddDate(0, -1, 0),
					Method: "CASH",
				}); err != nil {
					return err
				}
				return h.payInstallmentsInFull(ctx, number, 1)
			},
		},
	}

	for _, s := range seeds {
		customer, err := h.seedCustomer(ctx, s.id, s.first, s.last)
		if err != nil {
			return err
		}
		s.app.CustomerID = customer.ID
		s.app.SalesAdvisor = "asesor-demo"
		credit, err := h.Service.CreateCredit(ctx, s.app)
		if err != nil {
			return err
		}
		if err := s.run(credit.Number); err != nil {
			return err
		}
	}
	return nil
}
