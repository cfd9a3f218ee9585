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
	"net"
	"regexp"
	"strings"

	"premium-referral-go/internal/common"
	"premium-referral-go/internal/config"
	"premium-referral-go/internal/models"
	"premium-referral-go/internal/store"

	"go.uber.org/zap"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

func validateIP(ip string) error {
	if ip != "" && net.ParseIP(ip) == nil {
		return fmt.Errorf("invalid IP address: %s", ip)
	}
	return nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	nameFlag := flag.String("name", "", "Account holder's name (optional)")
	emailFlag := flag.String("email", "", "Account email address (required)")
	referrerFlag := flag.String("referrer", "", "Email of the referring account (optional)")
	programFlag := flag.String("program", "standard", "Referral program this account earns under: standard, offer_5, offer_10")
	ipFlag := flag.String("ip", "", "Registration IP (optional)")
	flag.Parse()

	if err := validateEmail(*emailFlag); err != nil {
		zap.L().Fatal("Invalid email", zap.Error(err))
	}
	if err := validateIP(*ipFlag); err != nil {
		zap.L().Fatal("Invalid IP", zap.Error(err))
	}
	program, err := models.ParseReferralProgram(*programFlag)
	if err != nil {
		zap.L().Fatal("Invalid program", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	params := store.CreateAccountParams{
		Email:           strings.ToLower(*emailFlag),
		Name:            *nameFlag,
		ReferralProgram: program,
		RegistrationIP:  *ipFlag,
	}
	if *referrerFlag != "" {
		referrer, err := dbService.FindAccountByEmail(ctx, *referrerFlag)
		if err != nil {
			zap.L().Fatal("Referrer not found", zap.String("email", *referrerFlag), zap.Error(err))
		}
		params.ReferredByAccountId = referrer.Id
	}

	account, err := dbService.CreateAccount(ctx, params)
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			zap.L().Fatal("Account already exists with this email", zap.String("email", params.Email))
		}
		zap.L().Fatal("Failed to create account", zap.Error(err))
	}

	common.PrintHeader("ACCOUNT CREATED", common.DefaultWidth)
	fmt.Printf("ID:          %s\n", account.Id)
	fmt.Printf("Email:       %s\n", account.Email)
	fmt.Printf("Program:     %s\n", account.ReferralProgram)
	if account.ReferredByAccountId != "" {
		fmt.Printf("Referred by: %s (%s)\n", *referrerFlag, account.ReferredByAccountId)
	}
	common.PrintFooter("Account ready", common.DefaultWidth)

	zap.L().Info("Account created successfully", zap.String("id", account.Id))
}
