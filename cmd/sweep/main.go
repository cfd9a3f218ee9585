package main

import (
	"context"
	"fmt"

	"premium-referral-go/internal/common"
	"premium-referral-go/internal/config"
	"premium-referral-go/internal/reconcile"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	job := reconcile.NewJob(reconcile.JobConfig{
		Accounts:     dbService,
		Interval:     cfg.Reconciler.SweepInterval,
		MonthlyCoins: cfg.Reconciler.MonthlyCoins,
	})

	result, err := job.RunOnce(ctx)

	common.PrintHeader("RECONCILIATION SWEEP", common.DefaultWidth)
	fmt.Printf("Ran at:                  %s\n", common.FormatTime(&result.RanAt))
	fmt.Printf("Cancelled expired:       %d\n", result.Expired)
	fmt.Printf("Legacy records expired:  %d\n", result.LegacyExpired)
	fmt.Printf("Monthly coin grants:     %d\n", result.MonthlyGrants)
	common.PrintFooter("Sweep complete", common.DefaultWidth)

	if err != nil {
		zap.L().Fatal("Sweep finished with errors", zap.Error(err))
	}
}
