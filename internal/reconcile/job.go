/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"premium-referral-go/internal/clock"
	"premium-referral-go/internal/models"
	"premium-referral-go/internal/premium"
	"premium-referral-go/internal/store"

	"go.uber.org/zap"
)

const defaultInterval = time.Hour

// Observer receives the result of every sweep.
type Observer interface {
	RecordSweep(result models.SweepResult)
}

// JobConfig contains configuration for Job
type JobConfig struct {
	Accounts     store.AccountRepository
	Interval     time.Duration
	MonthlyCoins int64
	Observer     Observer
	Clock        clock.Clock
}

// Job periodically expires lapsed cancelled subscriptions and hands out the
// monthly premium coin grant. It only ever moves premium_active from true to false,
// so it may overlap with webhook handlers.
type Job struct {
	accounts     store.AccountRepository
	interval     time.Duration
	monthlyCoins int64
	observer     Observer
	clock        clock.Clock

	mu   sync.Mutex
	last models.SweepResult

	// Control channels
	stopChan  chan struct{}
	doneChan  chan struct{}
	started   bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewJob creates a new reconciliation job
func NewJob(cfg JobConfig) *Job {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	c := cfg.Clock
	if c == nil {
		c = clock.System{}
	}
	return &Job{
		accounts:     cfg.Accounts,
		interval:     interval,
		monthlyCoins: cfg.MonthlyCoins,
		observer:     cfg.Observer,
		clock:        c,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start runs one sweep immediately and then one per interval until Stop or ctx ends.
// Only the first call starts the loop; a stopped job is not restarted.
func (j *Job) Start(ctx context.Context) {
	j.startOnce.Do(func() {
		j.mu.Lock()
		j.started = true
		j.mu.Unlock()

		go j.loop(ctx)

		zap.L().Info("Reconciliation job started",
			zap.Duration("interval", j.interval),
			zap.Int64("monthly_coins", j.monthlyCoins))
	})
}

// Stop gracefully stops the job, waiting for an in-flight sweep. It is safe to call
// more than once.
func (j *Job) Stop() {
	j.mu.Lock()
	started := j.started
	j.mu.Unlock()
	if !started {
		return
	}

	j.stopOnce.Do(func() {
		zap.L().Info("Stopping reconciliation job")
		close(j.stopChan)
	})
	<-j.doneChan
	zap.L().Info("Reconciliation job stopped")
}

func (j *Job) loop(ctx context.Context) {
	defer close(j.doneChan)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			j.sweep(ctx)
		case <-j.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (j *Job) sweep(ctx context.Context) {
	if _, err := j.RunOnce(ctx); err != nil {
		zap.L().Error("Reconciliation sweep failed", zap.Error(err))
	}
}

// RunOnce performs a single pass. Steps are independent: a failing step is
// reported but does not prevent the others from running.
func (j *Job) RunOnce(ctx context.Context) (models.SweepResult, error) {
	now := j.clock.Now()
	result := models.SweepResult{RanAt: now}
	var errs []error

	expired, err := j.accounts.ExpireCancelledPremium(ctx, now)
	if err != nil {
		errs = append(errs, err)
	}
	result.Expired = expired

	for _, plan := range premium.Plans() {
		cutoff := now.Add(-premium.Duration(plan))
		n, err := j.accounts.ExpireLegacyCancelledPremium(ctx, plan, cutoff)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		result.LegacyExpired += n
	}

	if j.monthlyCoins > 0 {
		granted, err := j.accounts.GrantMonthlyCoins(ctx, j.monthlyCoins, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("monthly grant: %w", err))
		}
		result.MonthlyGrants = granted
	}

	j.mu.Lock()
	j.last = result
	j.mu.Unlock()

	if j.observer != nil {
		j.observer.RecordSweep(result)
	}

	if result.Changed() {
		zap.L().Info("Reconciliation sweep changed accounts",
			zap.Int64("expired", result.Expired),
			zap.Int64("legacy_expired", result.LegacyExpired),
			zap.Int64("monthly_grants", result.MonthlyGrants))
	} else {
		zap.L().Debug("Reconciliation sweep found nothing to do")
	}
	return result, errors.Join(errs...)
}

// LastResult returns the most recent sweep result.
func (j *Job) LastResult() models.SweepResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}
