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

type withdrawRequest struct {
	token       string
	shares      decimal.Decimal
	destination string
}

func parseAndValidateFlags() (*withdrawRequest, error) {
	tokenFlag := flag.String("token", "", "User bearer token (required)")
	sharesFlag := flag.String("shares", "", "Whole number of shares to redeem (required)")
	destinationFlag := flag.String("destination", "", "Recipient of the vault payout (required)")
	flag.Parse()

	if *tokenFlag == "" || *sharesFlag == "" || *destinationFlag == "" {
		return nil, fmt.Errorf("all flags are required: --token, --shares, --destination")
	}

	shares, err := decimal.NewFromString(*sharesFlag)
	if err != nil {
		return nil, fmt.Errorf("invalid shares format: %w", err)
	}
	if shares.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("shares must be greater than zero")
	}

	return &withdrawRequest{
		token:       *tokenFlag,
		shares:      shares,
		destination: *destinationFlag,
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

	result, err := services.LedgerService.WithdrawAvailable(ctx, user, request.shares, request.destination)
	if err != nil {
		zap.L().Fatal("Withdrawal failed",
			zap.String("user", user),
			zap.String("shares", request.shares.String()),
			zap.Error(err))
	}

	common.PrintHeader("Withdrawal Complete", common.DefaultWidth)
	fmt.Printf("User:             %s\n", user)
	fmt.Printf("Shares burned:    %s\n", result.SharesBurned.String())
	for _, amount := range result.AmountsReceived {
		fmt.Printf("Amount received:  %s %s\n", amount.String(), services.Profile.Asset)
	}
	fmt.Printf("Destination:      %s\n", request.destination)
	fmt.Printf("Available shares: %s\n", result.NewAvailableBalance.String())
	common.PrintFooter("Done", common.DefaultWidth)
}
