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
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"premium-referral-go/internal/common"
	"premium-referral-go/internal/config"
	"premium-referral-go/internal/models"
	"premium-referral-go/internal/premium"
	"premium-referral-go/internal/wallet"

	"go.uber.org/zap"
)

type balanceStats struct {
	totalAccounts int
	premium       int
	mismatches    int
}

func printAccountHeader(account models.Account, status string) {
	common.PrintSection(fmt.Sprintf("Account: %s", account.Email), 78)
	fmt.Printf("│  ID: %s\n", account.Id)
	fmt.Printf("│  Premium: %s\n", status)
}

func premiumSummary(account models.Account, now time.Time) string {
	if !premium.IsEntitled(account, now) {
		return "none"
	}
	end, _ := premium.EffectiveEnd(account)
	summary := fmt.Sprintf("%s until %s", account.PremiumPlan, common.FormatTime(&end))
	if account.PremiumCancelled {
		summary += " (cancelled)"
	}
	return summary
}

func printAudit(audit models.BalanceAudit, isLast bool) {
	check := "✓"
	if !audit.Matches {
		check = "✗ " + audit.Error
	}
	fmt.Printf("%s %-15s: %12d %s\n", common.BoxPrefix(isLast), audit.Kind, audit.Balance, check)
}

func processAccounts(ctx context.Context, accounts []models.Account, walletService *wallet.Service) balanceStats {
	stats := balanceStats{}
	now := time.Now()

	for _, account := range accounts {
		stats.totalAccounts++
		status := premiumSummary(account, now)
		if status != "none" {
			stats.premium++
		}

		audits := walletService.Audit(ctx, account)
		printAccountHeader(account, status)
		for i, audit := range audits {
			if !audit.Matches {
				stats.mismatches++
				zap.L().Error("Balance does not match its entries",
					zap.String("account_id", account.Id),
					zap.String("kind", string(audit.Kind)),
					zap.String("error", audit.Error))
			}
			printAudit(audit, i == len(audits)-1)
		}
	}
	return stats
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "Filter by specific account email (optional)")
	flag.Parse()

	zap.L().Info("Starting balance report")

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	// read-only: no gateway or journal needed
	zap.L().Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	var accounts []models.Account
	if *emailFlag != "" {
		account, err := dbService.FindAccountByEmail(ctx, *emailFlag)
		if err != nil {
			zap.L().Fatal("Failed to find account", zap.String("email", *emailFlag), zap.Error(err))
		}
		accounts = []models.Account{*account}
	} else {
		accounts, err = dbService.ListAccounts(ctx)
		if err != nil {
			zap.L().Fatal("Failed to list accounts", zap.Error(err))
		}
	}

	common.PrintHeader("ACCOUNT BALANCE REPORT", common.DefaultWidth)

	stats := processAccounts(ctx, accounts, wallet.NewService(wallet.Params{Accounts: dbService}))

	summary := fmt.Sprintf("SUMMARY: %d accounts (%d premium), %d balance mismatches",
		stats.totalAccounts, stats.premium, stats.mismatches)
	common.PrintFooter(summary, common.DefaultWidth)

	logger := zap.L().With(
		zap.Int("accounts", stats.totalAccounts),
		zap.Int("premium", stats.premium),
		zap.Int("mismatches", stats.mismatches))
	if stats.mismatches > 0 {
		logger.Fatal("Balance report found mismatches")
	}
	logger.Info("Balance report completed")
}
