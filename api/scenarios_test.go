package api_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libramoneda/credit-engine/api"
)

// =============================================================================
// SCENARIO LOADING
// =============================================================================

func TestListScenarios(t *testing.T) {
	f := newAPIFixture(t)

	var list []api.ScenarioDTO
	code := f.do(t, http.MethodGet, "/api/scenarios", nil, &list)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list, 3)
	assert.Equal(t, "fresh-libranza", list[0].ID)
}

func TestLoadScenario_FreshLibranza(t *testing.T) {
	// GIVEN: An empty database
	// WHEN: Loading the fresh-libranza scenario
	// THEN: One disbursed credit with a full schedule and no payments

	f := newAPIFixture(t)

	code := f.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{
		"scenario_id": "fresh-libranza",
	}, nil)
	require.Equal(t, http.StatusOK, code)

	var credits []api.CreditDTO
	code = f.do(t, http.MethodGet, "/api/credits", nil, &credits)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, credits, 1)
	assert.Equal(t, "DISBURSED", credits[0].Status)
	assert.Equal(t, "8000000", credits[0].Balance.String())

	var schedule []api.InstallmentDTO
	code = f.do(t, http.MethodGet, "/api/credits/"+credits[0].Number+"/schedule", nil, &schedule)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, schedule, 12)

	var current api.ScenarioDTO
	code = f.do(t, http.MethodGet, "/api/scenarios/current", nil, &current)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "fresh-libranza", current.ID)
}

func TestLoadScenario_Collections(t *testing.T) {
	f := newAPIFixture(t)

	code := f.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{
		"scenario_id": "collections",
	}, nil)
	require.Equal(t, http.StatusOK, code)

	var credits []api.CreditDTO
	code = f.do(t, http.MethodGet, "/api/credits", nil, &credits)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, credits, 1)

	// Two installments paid, the third overdue with late interest booked.
	var schedule []api.InstallmentDTO
	code = f.do(t, http.MethodGet, "/api/credits/"+credits[0].Number+"/schedule", nil, &schedule)
	require.Equal(t, http.StatusOK, code)
	require.True(t, len(schedule) >= 3)
	assert.Equal(t, "PAID", schedule[0].Status)
	assert.Equal(t, "PAID", schedule[1].Status)
	assert.Equal(t, "OVERDUE", schedule[2].Status)
	assert.True(t, schedule[2].LateInterestApplied.IsPositive())
}

func TestLoadScenario_ReplacesPreviousData(t *testing.T) {
	// GIVEN: The portfolio scenario is loaded
	// WHEN: Loading fresh-libranza afterwards
	// THEN: Only the new scenario's data remains

	f := newAPIFixture(t)

	code := f.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{
		"scenario_id": "portfolio",
	}, nil)
	require.Equal(t, http.StatusOK, code)

	var credits []api.CreditDTO
	code = f.do(t, http.MethodGet, "/api/credits", nil, &credits)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, credits, 4)

	code = f.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{
		"scenario_id": "fresh-libranza",
	}, nil)
	require.Equal(t, http.StatusOK, code)

	code = f.do(t, http.MethodGet, "/api/credits", nil, &credits)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, credits, 1)
}

func TestLoadScenario_UnknownID(t *testing.T) {
	f := newAPIFixture(t)
	code := f.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{
		"scenario_id": "nope",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}
