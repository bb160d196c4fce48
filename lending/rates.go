/*
rates.go - Rate configuration administration and resolution

PURPOSE:
  CreateRateConfig validates and persists a monthly rate configuration,
  deriving the base monthly rate from the usury ceiling when the
  administrator did not supply one. ResolveRate finds the configuration in
  force for a reference date: exact (year, month) first, then the most
  recent active config effective on or before the date.
*/
package lending

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/libramoneda/credit-engine/engine"
)

// RateConfigInput is the administrative input for one month's rates.
// Percentages throughout; BaseRate may be left zero to derive it.
type RateConfigInput struct {
	Year          int
	Month         time.Month
	UsuryRate     decimal.Decimal
	BaseRate      decimal.Decimal
	AvalLibranza  decimal.Decimal
	AvalHigh      decimal.Decimal
	AvalLow       decimal.Decimal
	IVARate       decimal.Decimal
	LateRate      decimal.Decimal
	EffectiveDate time.Time
	Notes         string
	CreatedBy     string
}

// Historical commercial defaults; applied when the input leaves them zero.
var (
	defaultAvalLibranza = decimal.RequireFromString("7.05")
	defaultAvalHigh     = decimal.RequireFromString("4.05")
	defaultAvalLow      = decimal.RequireFromString("7.05")
	defaultIVARate      = decimal.RequireFromString("19.00")
	defaultLateRate     = decimal.RequireFromString("3.00")
)

// CreateRateConfig persists a new monthly configuration. The store's unique
// (year, month) constraint rejects duplicates.
func (s *Service) CreateRateConfig(ctx context.Context, input RateConfigInput) (*engine.RateConfig, error) {
	if input.Year < 2000 || input.Month < time.January || input.Month > time.December {
		return nil, fmt.Errorf("rate config: invalid period %d-%d", input.Year, input.Month)
	}
	if input.UsuryRate.IsZero() && input.BaseRate.IsZero() {
		return nil, fmt.Errorf("rate config: usury rate or base rate required")
	}

	rc := &engine.RateConfig{
		ID:               uuid.NewString(),
		Year:             input.Year,
		Month:            input.Month,
		UsuryRate:        input.UsuryRate,
		BaseRate:         input.BaseRate,
		AvalRateLibranza: orDefault(input.AvalLibranza, defaultAvalLibranza),
		AvalRateHigh:     orDefault(input.AvalHigh, defaultAvalHigh),
		AvalRateLow:      orDefault(input.AvalLow, defaultAvalLow),
		IVARate:          orDefault(input.IVARate, defaultIVARate),
		LateRate:         orDefault(input.LateRate, defaultLateRate),
		Active:           true,
		EffectiveDate:    engine.DateOnly(input.EffectiveDate),
		Notes:            input.Notes,
		CreatedBy:        input.CreatedBy,
		CreatedAt:        s.Now(),
	}
	if rc.EffectiveDate.IsZero() {
		rc.EffectiveDate = engine.Date(rc.Year, rc.Month, 1)
	}

	if err := rc.DeriveBaseRate(s.Money); err != nil {
		return nil, fmt.Errorf("rate config: deriving base rate: %w", err)
	}

	if err := s.Store.SaveRateConfig(ctx, rc); err != nil {
		return nil, err
	}

	s.Log.WithFields(map[string]interface{}{
		"period":    fmt.Sprintf("%d-%02d", rc.Year, rc.Month),
		"usury":     rc.UsuryRate.String(),
		"base_rate": rc.BaseRate.String(),
	}).Info("rate config created")

	return rc, nil
}

// ResolveRate returns the configuration in force at the reference date.
func (s *Service) ResolveRate(ctx context.Context, reference time.Time) (*engine.RateConfig, error) {
	rc, err := s.Store.ActiveRateConfigByPeriod(ctx, reference.Year(), reference.Month())
	if err != nil {
		return nil, err
	}
	if rc != nil {
		return rc, nil
	}

	rc, err = s.Store.LatestActiveRateConfig(ctx, reference)
	if err != nil {
		return nil, err
	}
	if rc == nil {
		return nil, &engine.NoRateConfigError{Reference: reference}
	}
	return rc, nil
}

func orDefault(v, def decimal.Decimal) decimal.Decimal {
	if v.IsZero() {
		return def
	}
	return v
}
