/**
 * Copyright 2025-present Reserve Financing Authors
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

	"reserve-financing-go/internal/auth"
	"reserve-financing-go/internal/common"
	"reserve-financing-go/internal/config"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type depositRequest struct {
	token  string
	amount decimal.Decimal
}

func parseAndValidateFlags() (*depositRequest, error) {
	tokenFlag := flag.String("token", "", "User bearer token (required)")
	amountFlag := flag.String("amount", "", "Whole-unit amount to deposit (required)")
	flag.Parse()

	if *tokenFlag == "" || *amountFlag == "" {
		return nil, fmt.Errorf("all flags are required: --token, --amount")
	}

	amount, err := decimal.NewFromString(*amountFlag)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("amount must be greater than zero")
	}

	return &depositRequest{
		token:  *tokenFlag,
		amount: amount,
	}, nil
}

func main() {
	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	request, err := parseAndValidateFlags()
	if err != nil {
		flag.Usage()
		fmt.Printf("\nError: %v\n", err)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	verifier, err := auth.NewVerifier(cfg.Auth.SigningSecret)
	if err != nil {
		zap.L().Fatal("Failed to create token verifier", zap.Error(err))
	}
	user, err := verifier.Verify(request.token)
	if err != nil {
		zap.L().Fatal("Invalid token", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = auth.WithActor(ctx, user)

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	result, err := services.LedgerService.Deposit(ctx, user, request.amount)
	if err != nil {
		zap.L().Fatal("Deposit failed",
			zap.String("user", user),
			zap.String("amount", request.amount.String()),
			zap.Error(err))
	}

	common.PrintHeader("Deposit Complete", common.DefaultWidth)
	fmt.Printf("User:             %s\n", user)
	fmt.Printf("Amount deposited: %s %s\n", result.AmountDeposited.String(), services.Profile.Asset)
	fmt.Printf("Shares minted:    %s\n", result.SharesMinted.String())
	fmt.Printf("Available shares: %s\n", result.NewAvailableBalance.String())
	common.PrintFooter("Done", common.DefaultWidth)
}
