/*
sweep.go - Internship expiry sweep

PURPOSE:
  Batch driver of the ExpireEvent. Run once per scheduling tick:

    1. list interns whose running internship ended before today
    2. expire each in its own transaction (one audit entry per record,
       actor generic.SystemActor); a failure is logged and the batch goes on
    3. collect interns ending within [today, today+window] and publish them
       to the warning feed; a feed failure is logged, never returned

IDEMPOTENCE:
  Expired records no longer match step 1, so a second run on the same day
  changes nothing. Each record is re-read and re-checked inside its
  transaction, so a record converted or extended between listing and
  expiring is skipped rather than clobbered.

CONCURRENCY:
  The sweep does no mutual exclusion. Callers run it from a single
  scheduler (see api/scheduler.go) and must not overlap runs.
*/
package personnel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/personnel-engine/generic"
	"github.com/warp/personnel-engine/identity"
)

// SweepResult summarizes one run.
type SweepResult struct {
	Date     string        `json:"date"`
	Expired  []identity.ID `json:"expired"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Warnings []Warning     `json:"warnings"`

	// FeedError is set when the warning feed could not be published.
	FeedError string `json:"feed_error,omitempty"`
}

// Sweep expires overdue internships and publishes upcoming expiries.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	started := time.Now()
	m := getMetrics()
	today := generic.Today(s.clock)
	log := s.log.WithFields(logrus.Fields{"component": "sweep", "date": today.String()})

	result := SweepResult{Date: today.String(), Expired: []identity.ID{}}

	overdue, err := s.store.ListOverdue(ctx, today)
	if err != nil {
		m.sweepRunsTotal.WithLabelValues("error").Inc()
		return result, fmt.Errorf("list overdue internships: %w", err)
	}

	for _, rec := range overdue {
		if err := ctx.Err(); err != nil {
			m.sweepRunsTotal.WithLabelValues("canceled").Inc()
			return result, err
		}
		_, err := s.transition(ctx, generic.SystemActor, string(rec.ID), nil, staticEvent(ExpireEvent{}))
		switch {
		case err == nil:
			result.Expired = append(result.Expired, rec.ID)
			m.sweepExpired.Inc()
		case errors.Is(err, generic.ErrInvalidTransition), generic.IsNotFound(err):
			result.Skipped++
		default:
			result.Failed++
			m.sweepFailed.Inc()
			log.WithError(err).WithField("identifier", rec.ID).Warn("failed to expire internship")
		}
	}

	warnings, err := s.UpcomingExpiries(ctx, today)
	if err != nil {
		m.sweepRunsTotal.WithLabelValues("error").Inc()
		return result, err
	}
	result.Warnings = warnings
	m.warningsPending.Set(float64(len(warnings)))

	if s.feed != nil {
		if err := s.feed.Publish(ctx, warnings); err != nil {
			result.FeedError = err.Error()
			log.WithError(err).Warn("failed to publish expiry warnings")
		}
	}

	m.sweepRunsTotal.WithLabelValues("ok").Inc()
	m.sweepDuration.Observe(time.Since(started).Seconds())
	log.WithFields(logrus.Fields{
		"expired":  len(result.Expired),
		"skipped":  result.Skipped,
		"failed":   result.Failed,
		"warnings": len(warnings),
	}).Info("expiry sweep finished")
	return result, nil
}

// UpcomingExpiries lists running internships ending within the warning
// window, soonest first.
func (s *Service) UpcomingExpiries(ctx context.Context, today generic.TimePoint) ([]Warning, error) {
	window := generic.WindowFrom(today, s.warningWindowDays)
	candidates, err := s.store.ListExpiring(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("list expiring internships: %w", err)
	}

	warnings := make([]Warning, 0, len(candidates))
	for _, rec := range candidates {
		if w, ok := ExpiryWarning(rec, today, s.warningWindowDays); ok {
			warnings = append(warnings, w)
		}
	}
	sort.SliceStable(warnings, func(i, j int) bool {
		return warnings[i].DaysRemaining < warnings[j].DaysRemaining
	})
	return warnings, nil
}
