/*
scheduler.go - Periodic credit status sweep

PURPOSE:
  Optionally re-derives the lifecycle status of every collecting credit on
  a cron schedule (default: nightly), so reporting queries that filter on
  the stored status column see current values without waiting for the next
  mutation or read of each credit.

DESIGN:
  - Off by default (STATUS_REFRESH_ENABLED). Statuses are already
    re-derived after every payment and on every explicit refresh; the
    sweep only catches credits that crossed an overdue threshold by the
    pure passage of time.
  - The sweep is idempotent: a run that changes nothing writes nothing,
    so overlapping or repeated runs are harmless.

USAGE:
  refresher := api.NewStatusRefresher(svc, log, "0 2 * * *")
  if err := refresher.Start(); err != nil { ... }
  defer refresher.Stop()

SEE ALSO:
  - handlers.go: RefreshAllStatuses endpoint (manual sweep)
  - lending/service.go: RefreshAllCreditStatuses
*/
package api

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/libramoneda/credit-engine/lending"
)

// StatusRefresher runs the credit status sweep on a cron schedule.
type StatusRefresher struct {
	Service  *lending.Service
	Log      *logrus.Logger
	Schedule string

	cron *cron.Cron
}

// NewStatusRefresher creates a refresher; schedule is a standard 5-field
// cron expression.
func NewStatusRefresher(svc *lending.Service, log *logrus.Logger, schedule string) *StatusRefresher {
	if log == nil {
		log = logrus.New()
	}
	return &StatusRefresher{
		Service:  svc,
		Log:      log,
		Schedule: schedule,
	}
}

// Start schedules the sweep. Returns an error for a malformed expression.
func (sr *StatusRefresher) Start() error {
	sr.cron = cron.New()
	_, err := sr.cron.AddFunc(sr.Schedule, sr.run)
	if err != nil {
		return err
	}
	sr.cron.Start()
	sr.Log.WithField("schedule", sr.Schedule).Info("status refresher started")
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (sr *StatusRefresher) Stop() {
	if sr.cron == nil {
		return
	}
	ctx := sr.cron.Stop()
	<-ctx.Done()
	sr.Log.Info("status refresher stopped")
}

func (sr *StatusRefresher) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	started := time.Now()
	changed, err := sr.Service.RefreshAllCreditStatuses(ctx)
	if err != nil {
		sr.Log.WithError(err).Error("status sweep failed")
		return
	}
	sr.Log.WithFields(logrus.Fields{
		"changed":  changed,
		"duration": time.Since(started).String(),
	}).Info("status sweep completed")
}
