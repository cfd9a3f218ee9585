package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"premium-referral-go/internal/common"
	"premium-referral-go/internal/config"
	"premium-referral-go/internal/fraud"
	"premium-referral-go/internal/models"
	"premium-referral-go/internal/store"

	"go.uber.org/zap"
)

func printReport(i int, report fraud.Report) {
	e := report.Earning
	fmt.Printf("\n%d. Earning %s (%s, $%s, %s)\n", i+1, common.ShortId(e.Id), e.EarningType, e.Amount.StringFixed(2), e.Status)
	fmt.Printf("   Referrer: %s  IP %s\n", report.ReferrerEmail, e.ReferrerIP)
	fmt.Printf("   Referred: %s  IP %s\n", report.ReferredEmail, e.ReferredIP)
	fmt.Printf("   Created:  %s\n", common.FormatTime(&e.CreatedAt))
	for j, reason := range report.Reasons {
		fmt.Printf("   %s%s\n", common.BoxPrefix(j == len(report.Reasons)-1), reason)
	}
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	statusFlag := flag.String("status", "pending", "Earning status to check (empty for all)")
	referrerFlag := flag.String("referrer", "", "Only check earnings of this referrer id (optional)")
	daysFlag := flag.Int("days", 30, "Only check earnings created in the last N days (0 for all)")
	allFlag := flag.Bool("all", false, "Print clean earnings too")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	filter := store.EarningFilter{
		Status:     models.EarningStatus(*statusFlag),
		ReferrerId: *referrerFlag,
	}
	if *daysFlag > 0 {
		filter.Since = time.Now().UTC().AddDate(0, 0, -*daysFlag)
	}

	reports, err := fraud.NewChecker(dbService, dbService, 0).Check(ctx, filter)
	if err != nil {
		zap.L().Fatal("Fraud check failed", zap.Error(err))
	}

	shown := reports
	if !*allFlag {
		shown = fraud.Flagged(reports)
	}

	common.PrintHeader("REFERRAL FRAUD REPORT", common.WideWidth)
	for i, report := range shown {
		printReport(i, report)
	}
	summary := fmt.Sprintf("SUMMARY: %d of %d earnings flagged for manual review",
		len(fraud.Flagged(reports)), len(reports))
	common.PrintFooter(summary, common.WideWidth)
}
