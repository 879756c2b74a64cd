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

package worker

import (
	"context"
	"errors"
	"time"

	"reserve-financing-go/internal/auth"
	"reserve-financing-go/internal/plans"

	"go.uber.org/zap"
)

// CollectorConfig contains configuration for Collector
type CollectorConfig struct {
	Engine          *plans.Engine
	PollingInterval time.Duration
}

// Collector polls the plan engine for due installments and collects them.
// Terminal installment markers (Paid/Failed) make a tick idempotent, so a
// failed run is simply retried on the next interval.
type Collector struct {
	engine          *plans.Engine
	pollingInterval time.Duration

	// Control channels
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewCollector creates a new installment collection worker
func NewCollector(cfg CollectorConfig) *Collector {
	return &Collector{
		engine:          cfg.Engine,
		pollingInterval: cfg.PollingInterval,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// Start begins the collection polling loop
func (c *Collector) Start(ctx context.Context) {
	zap.L().Info("Starting installment collector",
		zap.Duration("polling_interval", c.pollingInterval))

	go c.pollLoop(ctx)
}

// Stop gracefully stops the collector
func (c *Collector) Stop() {
	zap.L().Info("Stopping installment collector")
	close(c.stopChan)
	<-c.doneChan
	zap.L().Info("Installment collector stopped")
}

func (c *Collector) pollLoop(ctx context.Context) {
	defer close(c.doneChan)

	ticker := time.NewTicker(c.pollingInterval)
	defer ticker.Stop()

	c.collectDue(ctx)

	for {
		select {
		case <-ticker.C:
			c.collectDue(ctx)
		case <-c.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// collectDue runs one collection sweep over all active plans.
func (c *Collector) collectDue(ctx context.Context) {
	activePlans, err := c.engine.ListActivePlans(ctx)
	if err != nil {
		zap.L().Error("Failed to list active plans", zap.Error(err))
		return
	}

	for _, plan := range activePlans {
		due, err := c.engine.GetNextDue(ctx, plan.Id)
		if err != nil {
			zap.L().Error("Failed to check due installments",
				zap.Int64("plan_id", plan.Id),
				zap.Error(err))
			continue
		}
		if due == nil {
			continue
		}

		// The worker acts on the user's behalf: it stamps the plan owner's
		// proof the way a host-verified call would.
		userCtx := auth.WithActor(ctx, plan.User)

		source, err := c.engine.CollectInstallment(userCtx, plan.Id, due.Number)
		switch {
		case errors.Is(err, plans.ErrInsufficientFunds):
			zap.L().Warn("Plan defaulted",
				zap.Int64("plan_id", plan.Id),
				zap.Int("installment", due.Number),
				zap.String("user", plan.User))
		case err != nil:
			zap.L().Error("Failed to collect installment",
				zap.Int64("plan_id", plan.Id),
				zap.Int("installment", due.Number),
				zap.Error(err))
		default:
			zap.L().Info("Collected due installment",
				zap.Int64("plan_id", plan.Id),
				zap.Int("installment", due.Number),
				zap.String("amount", due.Amount.String()),
				zap.String("source", string(source)))
		}
	}
}
