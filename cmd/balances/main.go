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

	"reserve-financing-go/internal/api"
	"reserve-financing-go/internal/common"
	"reserve-financing-go/internal/config"

	"go.uber.org/zap"
)

func main() {
	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "User identity to inspect (default: pool overview only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	apiService := api.NewFinancingService(services.LedgerService, services.PlanEngine)

	stats, err := apiService.GetPoolOverview(ctx)
	if err != nil {
		zap.L().Fatal("Failed to get pool overview", zap.Error(err))
	}

	common.PrintHeader(fmt.Sprintf("Pool Overview (%s)", services.Profile.Asset), common.DefaultWidth)
	fmt.Printf("Total available shares: %s\n", stats.TotalAvailable.String())
	fmt.Printf("Total protected shares: %s\n", stats.TotalProtected.String())
	fmt.Printf("Total deposited:        %s\n", stats.TotalDeposited.String())
	fmt.Printf("Unique users:           %d\n", stats.UniqueUsers)

	if *userFlag == "" {
		common.PrintFooter("Done", common.DefaultWidth)
		return
	}

	position, err := apiService.GetUserPosition(ctx, *userFlag)
	if err != nil {
		zap.L().Fatal("Failed to get user position", zap.String("user", *userFlag), zap.Error(err))
	}

	fmt.Printf("\n┌─ User: %s\n", *userFlag)
	fmt.Printf("│  Available shares: %s (value %s)\n",
		position.Balance.AvailableShares.String(), position.Values.AvailableValue.String())
	fmt.Printf("│  Protected shares: %s (value %s)\n",
		position.Balance.ProtectedShares.String(), position.Values.ProtectedValue.String())
	fmt.Printf("│  Total deposited:  %s\n", position.Balance.TotalDeposited.String())
	fmt.Printf("└  Plans:            %d\n", len(position.Plans))

	common.PrintFooter("Done", common.DefaultWidth)
}
