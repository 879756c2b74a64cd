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

package api

import (
	"context"
	"fmt"

	"reserve-financing-go/internal/ledger"
	"reserve-financing-go/internal/models"
	"reserve-financing-go/internal/plans"

	"go.uber.org/zap"
)

// FinancingService provides minimal API
type FinancingService struct {
	ledger *ledger.Service
	plans  *plans.Engine
}

func NewFinancingService(ledgerService *ledger.Service, planEngine *plans.Engine) *FinancingService {
	return &FinancingService{
		ledger: ledgerService,
		plans:  planEngine,
	}
}

func (s *FinancingService) HealthCheck(ctx context.Context) error {
	if _, err := s.ledger.GetTotalStats(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// UserPosition combines a user's share balance, its live valuation and all
// of their plans into one view.
type UserPosition struct {
	Balance models.ShareBalance
	Values  models.ValueBreakdown
	Plans   []models.Plan
}

// GetUserPosition returns the user's full financing position.
func (s *FinancingService) GetUserPosition(ctx context.Context, userId string) (UserPosition, error) {
	if userId == "" {
		return UserPosition{}, fmt.Errorf("user_id is required")
	}

	balance, err := s.ledger.GetBalance(ctx, userId)
	if err != nil {
		zap.L().Error("Failed to get user balance", zap.String("user_id", userId), zap.Error(err))
		return UserPosition{}, fmt.Errorf("failed to retrieve balance")
	}

	values, err := s.ledger.GetValues(ctx, userId)
	if err != nil {
		zap.L().Error("Failed to value user position", zap.String("user_id", userId), zap.Error(err))
		return UserPosition{}, fmt.Errorf("failed to value position")
	}

	userPlans, err := s.plans.GetUserPlans(ctx, userId)
	if err != nil {
		zap.L().Error("Failed to get user plans", zap.String("user_id", userId), zap.Error(err))
		return UserPosition{}, fmt.Errorf("failed to retrieve plans")
	}

	return UserPosition{
		Balance: balance,
		Values:  values,
		Plans:   userPlans,
	}, nil
}

// GetPoolOverview returns the pool-wide aggregate counters.
func (s *FinancingService) GetPoolOverview(ctx context.Context) (models.TotalStats, error) {
	stats, err := s.ledger.GetTotalStats(ctx)
	if err != nil {
		zap.L().Error("Failed to get pool stats", zap.Error(err))
		return models.TotalStats{}, fmt.Errorf("failed to retrieve pool stats")
	}
	return stats, nil
}
