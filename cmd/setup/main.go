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
	"time"

	"reserve-financing-go/internal/auth"
	"reserve-financing-go/internal/common"
	"reserve-financing-go/internal/config"
	"reserve-financing-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	tokenFlag := flag.String("token", "", "Admin bearer token (required)")
	intervalFlag := flag.Duration("min-deposit-interval", 0, "Minimum interval between deposits per user (default 2s)")
	slippageFlag := flag.Int64("slippage-bps", 0, "Slippage tolerance in basis points (default 50)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	if *tokenFlag == "" {
		zap.L().Fatal("--token is required")
	}

	verifier, err := auth.NewVerifier(cfg.Auth.SigningSecret)
	if err != nil {
		zap.L().Fatal("Failed to create token verifier", zap.Error(err))
	}
	identity, err := verifier.Verify(*tokenFlag)
	if err != nil {
		zap.L().Fatal("Invalid token", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = auth.WithActor(ctx, identity)

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	instanceCfg := models.InstanceConfig{
		MinDepositInterval: *intervalFlag,
		AdminIdentity:      services.Profile.AdminIdentity,
		EngineIdentity:     services.Profile.EngineIdentity,
		Asset:              services.Profile.Asset,
	}
	if *slippageFlag > 0 {
		instanceCfg.SlippageBps = decimal.New(*slippageFlag, 0)
	}

	if err := services.LedgerService.Initialize(ctx, instanceCfg); err != nil {
		zap.L().Fatal("Failed to initialize instance", zap.Error(err))
	}

	stored, err := services.LedgerService.GetConfig(ctx)
	if err != nil {
		zap.L().Fatal("Failed to read back instance config", zap.Error(err))
	}

	common.PrintHeader("Instance Setup Complete", common.DefaultWidth)
	fmt.Printf("Asset:                %s\n", stored.Asset)
	fmt.Printf("Admin identity:       %s\n", stored.AdminIdentity)
	fmt.Printf("Engine identity:      %s\n", stored.EngineIdentity)
	fmt.Printf("Min deposit interval: %s\n", stored.MinDepositInterval)
	fmt.Printf("Slippage tolerance:   %s bps\n", stored.SlippageBps.String())
	common.PrintFooter(fmt.Sprintf("Setup finished at %s", time.Now().Format("2006-01-02 15:04:05")), common.DefaultWidth)
}
