// Package events records notification events alongside state changes.
// Consumers (indexers, workers) must treat rows here as notifications only
// and re-read authoritative state through the query operations.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Topics emitted by the ledger and the plan engine.
const (
	TopicInitialized      = "initialized"
	TopicEngineRegistered = "engine_registered"
	TopicConfigUpdated    = "config_updated"
	TopicPaused           = "paused"
	TopicUnpaused         = "unpaused"
	TopicDeposit          = "deposit"
	TopicLock             = "lock"
	TopicUnlock           = "unlock"
	TopicWithdraw         = "withdraw"
	TopicPlanCreated      = "plan_created"
	TopicInstallmentPaid  = "installment_paid"
)

// Execer lets events ride inside the caller's transaction so a rolled-back
// operation never leaves a stray notification behind.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const queryInsertEvent = `
	INSERT INTO events (id, topic, actor, payload, created_at)
	VALUES (?, ?, ?, ?, ?)`

func InitSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		topic TEXT NOT NULL,
		actor TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_events_topic ON events(topic);
	CREATE INDEX IF NOT EXISTS idx_events_actor ON events(actor);
	CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Record writes one event row and logs it.
func Record(ctx context.Context, ex Execer, topic, actor string, payload interface{}) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}

	_, err = ex.ExecContext(ctx, queryInsertEvent, uuid.New().String(), topic, actor, string(encoded), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	zap.L().Info("Event recorded",
		zap.String("topic", topic),
		zap.String("actor", actor))

	return nil
}
