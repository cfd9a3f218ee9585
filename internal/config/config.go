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

package config

import (
	"errors"
	"fmt"

	"premium-referral-go/internal/models"

	"github.com/caarlos0/env/v10"
)

// Load parses the process environment into a validated Config.
func Load() (*models.Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(environment map[string]string) (*models.Config, error) {
	return parse(env.Options{Environment: environment})
}

func parse(opts env.Options) (*models.Config, error) {
	cfg := &models.Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func Validate(cfg *models.Config) error {
	var errs []error

	if cfg.Database.Path == "" {
		errs = append(errs, errors.New("DATABASE_PATH must not be empty"))
	}
	if cfg.Database.MaxOpenConns <= 0 {
		errs = append(errs, fmt.Errorf("DB_MAX_OPEN_CONNS must be positive, got %d", cfg.Database.MaxOpenConns))
	}
	if cfg.Server.Port == "" {
		errs = append(errs, errors.New("HTTP_PORT must not be empty"))
	}
	if cfg.Webhook.MaxBodyKB <= 0 {
		errs = append(errs, fmt.Errorf("WEBHOOK_MAX_BODY_KB must be positive, got %d", cfg.Webhook.MaxBodyKB))
	}
	if cfg.Reconciler.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("RECONCILE_SWEEP_INTERVAL must be positive, got %s", cfg.Reconciler.SweepInterval))
	}
	if cfg.Reconciler.MonthlyCoins < 0 {
		errs = append(errs, fmt.Errorf("RECONCILE_MONTHLY_COINS must not be negative, got %d", cfg.Reconciler.MonthlyCoins))
	}
	if cfg.Gateway.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("GATEWAY_TIMEOUT must be positive, got %s", cfg.Gateway.Timeout))
	}
	if cfg.Gateway.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("GATEWAY_MAX_RETRIES must not be negative, got %d", cfg.Gateway.MaxRetries))
	}
	if cfg.Gateway.WebhookTolerance <= 0 {
		errs = append(errs, fmt.Errorf("GATEWAY_WEBHOOK_TOLERANCE must be positive, got %s", cfg.Gateway.WebhookTolerance))
	}
	if cfg.Referral.JournalEnabled {
		f := cfg.Formance
		if f.StackURL == "" || f.ClientID == "" || f.ClientSecret == "" {
			errs = append(errs, errors.New("REFERRAL_JOURNAL_ENABLED requires FORMANCE_STACK_URL, FORMANCE_CLIENT_ID and FORMANCE_CLIENT_SECRET"))
		}
	}

	return errors.Join(errs...)
}
