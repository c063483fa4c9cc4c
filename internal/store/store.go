// File: internal/store/store.go
// Description: Durable step-record persistence on SQLite. One row per
// attempted step, complex fields stored as JSON columns. The store is an
// optional sink; the JSONL session log remains the primary record.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver.

	"github.com/deskpilot/deskpilot-cli/api/schemas"
)

const schema = `
CREATE TABLE IF NOT EXISTS steps (
	session_id     TEXT NOT NULL,
	step           INTEGER NOT NULL,
	round          INTEGER NOT NULL,
	round_step     INTEGER NOT NULL,
	agent_step     INTEGER NOT NULL,
	subtask        TEXT NOT NULL DEFAULT '',
	request        TEXT NOT NULL DEFAULT '',
	agent          TEXT NOT NULL DEFAULT '',
	application    TEXT NOT NULL DEFAULT '',
	function_call  TEXT NOT NULL DEFAULT '[]',
	action         TEXT NOT NULL DEFAULT '[]',
	action_success TEXT NOT NULL DEFAULT '[]',
	plan           TEXT NOT NULL DEFAULT '[]',
	status         TEXT NOT NULL DEFAULT '',
	cost           REAL NOT NULL DEFAULT 0,
	results        TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL DEFAULT '',
	time_cost      TEXT NOT NULL DEFAULT '{}',
	control_log    TEXT NOT NULL DEFAULT '[]',
	user_confirm   TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL,
	PRIMARY KEY (session_id, step)
);
`

// Store persists step records in a SQLite database.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens (or creates) the database at dbPath and ensures the schema
// exists. The caller is responsible for calling Close.
func Open(dbPath string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // Prevent SQLITE_BUSY.
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db, log: logger.Named("store")}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// InsertStep persists one step record. A SCREENSHOT re-ask repeats its step
// index without advancing the counter, so writes upsert on (session_id, step)
// and the latest attempt wins; every attempt is still in the JSONL log.
func (s *Store) InsertStep(ctx context.Context, record *schemas.StepRecord) error {
	functionCall := marshalColumn(record.FunctionCall, "[]")
	action := marshalColumn(record.Action, "[]")
	actionSuccess := marshalColumn(record.ActionSuccess, "[]")
	plan := marshalColumn(record.Plan, "[]")
	timeCost := marshalColumn(record.TimeCost, "{}")
	controlLog := marshalColumn(record.ControlLog, "[]")

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO steps
			(session_id, step, round, round_step, agent_step, subtask, request, agent,
			 application, function_call, action, action_success, plan, status, cost,
			 results, error, time_cost, control_log, user_confirm, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		record.SessionID, record.Step, record.Round, record.RoundStep, record.AgentStep,
		record.Subtask, record.Request, record.Agent, record.Application,
		functionCall, action, actionSuccess, plan, record.Status, record.Cost,
		record.Results, record.Error, timeCost, controlLog, record.UserConfirm,
		time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert step record: %w", err)
	}
	return nil
}

// ListSteps returns every record of one session in step order.
func (s *Store) ListSteps(ctx context.Context, sessionID string) ([]schemas.StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, step, round, round_step, agent_step, subtask, request, agent,
		       application, function_call, action, action_success, plan, status, cost,
		       results, error, time_cost, control_log, user_confirm
		FROM steps WHERE session_id = ? ORDER BY step`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var out []schemas.StepRecord
	for rows.Next() {
		var (
			record                                                     schemas.StepRecord
			functionCall, action, actionSuccess, plan, timeCost, ctrls string
		)
		if err := rows.Scan(
			&record.SessionID, &record.Step, &record.Round, &record.RoundStep,
			&record.AgentStep, &record.Subtask, &record.Request, &record.Agent,
			&record.Application, &functionCall, &action, &actionSuccess, &plan,
			&record.Status, &record.Cost, &record.Results, &record.Error,
			&timeCost, &ctrls, &record.UserConfirm); err != nil {
			return nil, fmt.Errorf("failed to scan step record: %w", err)
		}

		unmarshalColumn(functionCall, &record.FunctionCall, s.log)
		unmarshalColumn(action, &record.Action, s.log)
		unmarshalColumn(actionSuccess, &record.ActionSuccess, s.log)
		unmarshalColumn(plan, &record.Plan, s.log)
		unmarshalColumn(timeCost, &record.TimeCost, s.log)
		unmarshalColumn(ctrls, &record.ControlLog, s.log)
		out = append(out, record)
	}
	return out, rows.Err()
}

func marshalColumn(v any, fallback string) string {
	payload, err := json.MarshalToString(v)
	if err != nil || payload == "null" {
		return fallback
	}
	return payload
}

func unmarshalColumn[T any](payload string, dst *T, log *zap.Logger) {
	if payload == "" {
		return
	}
	if err := json.UnmarshalFromString(payload, dst); err != nil {
		log.Warn("Failed to decode stored column", zap.Error(err))
	}
}
