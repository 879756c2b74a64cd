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
	"strconv"
	"strings"
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

	actionFlag := flag.String("action", "", "Action: create, collect, show or list (required)")
	tokenFlag := flag.String("token", "", "User bearer token (required)")
	merchantFlag := flag.String("merchant", "", "Merchant identity (create)")
	amountFlag := flag.String("amount", "", "Total plan amount in whole units (create)")
	dueFlag := flag.String("due", "", "Comma-separated installment due dates, unix seconds (create)")
	planFlag := flag.Int64("plan", 0, "Plan id (collect, show)")
	numberFlag := flag.Int("number", 0, "Installment number (collect)")
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
	user, err := verifier.Verify(*tokenFlag)
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

	switch *actionFlag {
	case "create":
		runCreate(ctx, services, user, *merchantFlag, *amountFlag, *dueFlag)
	case "collect":
		runCollect(ctx, services, *planFlag, *numberFlag)
	case "show":
		runShow(ctx, services, *planFlag)
	case "list":
		runList(ctx, services, user)
	default:
		zap.L().Fatal("Unknown action, expected create, collect, show or list",
			zap.String("action", *actionFlag))
	}
}

func runCreate(ctx context.Context, services *common.Services, user, merchant, amountStr, dueStr string) {
	if merchant == "" || amountStr == "" || dueStr == "" {
		zap.L().Fatal("create requires --merchant, --amount and --due")
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		zap.L().Fatal("Invalid amount format", zap.Error(err))
	}

	var dueDates []int64
	for _, part := range strings.Split(dueStr, ",") {
		ts, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			zap.L().Fatal("Invalid due date", zap.String("value", part), zap.Error(err))
		}
		dueDates = append(dueDates, ts)
	}

	planId, err := services.PlanEngine.CreatePlan(ctx, user, merchant, amount, len(dueDates), dueDates)
	if err != nil {
		zap.L().Fatal("Failed to create plan", zap.Error(err))
	}

	common.PrintHeader("Plan Created", common.DefaultWidth)
	fmt.Printf("Plan id:      %d\n", planId)
	fmt.Printf("User:         %s\n", user)
	fmt.Printf("Merchant:     %s\n", merchant)
	fmt.Printf("Total amount: %s %s\n", amount.String(), services.Profile.Asset)
	fmt.Printf("Installments: %d\n", len(dueDates))
	common.PrintFooter("Done", common.DefaultWidth)
}

func runCollect(ctx context.Context, services *common.Services, planId int64, number int) {
	if planId == 0 || number == 0 {
		zap.L().Fatal("collect requires --plan and --number")
	}

	source, err := services.PlanEngine.CollectInstallment(ctx, planId, number)
	if err != nil {
		zap.L().Fatal("Failed to collect installment",
			zap.Int64("plan_id", planId),
			zap.Int("installment", number),
			zap.Error(err))
	}

	fmt.Printf("Installment %d of plan %d collected from the %s pool\n", number, planId, source)
}

func runShow(ctx context.Context, services *common.Services, planId int64) {
	if planId == 0 {
		zap.L().Fatal("show requires --plan")
	}

	summary, err := services.PlanEngine.GetPlanSummary(ctx, planId)
	if err != nil {
		zap.L().Fatal("Failed to get plan", zap.Int64("plan_id", planId), zap.Error(err))
	}

	printPlan(summary.Plan)
	fmt.Printf("│  Available value: %s\n", summary.AvailableValue.String())
	fmt.Printf("└  Protected value: %s\n", summary.ProtectedValue.String())
}

func runList(ctx context.Context, services *common.Services, user string) {
	userPlans, err := services.PlanEngine.GetUserPlans(ctx, user)
	if err != nil {
		zap.L().Fatal("Failed to list plans", zap.String("user", user), zap.Error(err))
	}

	if len(userPlans) == 0 {
		fmt.Printf("No plans for %s\n", user)
		return
	}

	for _, plan := range userPlans {
		printPlan(plan)
	}
}

func printPlan(plan models.Plan) {
	fmt.Printf("\n┌─ Plan %d (%s)\n", plan.Id, plan.Status)
	fmt.Printf("│  Merchant:         %s\n", plan.Merchant)
	fmt.Printf("│  Total amount:     %s\n", plan.TotalAmount.String())
	fmt.Printf("│  Locked shares:    %s\n", plan.ProtectedShares.String())
	fmt.Printf("│  Created:          %s\n", time.Unix(plan.CreatedAt, 0).UTC().Format("2006-01-02 15:04:05"))
	common.PrintBoxSeparator(78)

	for i, inst := range plan.Installments {
		paid := "-"
		if inst.PaidAt != nil {
			paid = time.Unix(*inst.PaidAt, 0).UTC().Format("2006-01-02 15:04:05")
		}
		source := ""
		if inst.PaymentSource != nil {
			source = " via " + string(*inst.PaymentSource)
		}
		fmt.Printf("%s#%d  %10s  due %s  [%s]%s  paid: %s\n",
			common.BoxPrefix(i == len(plan.Installments)-1),
			inst.Number,
			inst.Amount.String(),
			time.Unix(inst.DueDate, 0).UTC().Format("2006-01-02"),
			inst.Status,
			source,
			paid)
	}
}
