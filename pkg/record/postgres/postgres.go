// Package postgres provides a PostgreSQL implementation of
// record.Recorder. It uses pgx/v5 for connection pooling, JSONB for the
// fragment and tool-trace structures, and NUMERIC columns for the
// monetary figures so no floating point enters the billing trail.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/averbach/colloquy/pkg/api"
	"github.com/averbach/colloquy/pkg/billing"
	"github.com/averbach/colloquy/pkg/record"
)

const defaultHistoryLimit = 50

// Recorder is a PostgreSQL-backed record store.
type Recorder struct {
	pool *pgxpool.Pool
}

var _ record.Recorder = (*Recorder)(nil)

// New creates a PostgreSQL recorder with the given configuration. If
// MigrateOnStart is set, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Recorder, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	r := &Recorder{pool: pool}

	if cfg.MigrateOnStart {
		if err := r.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return r, nil
}

// NewWithPool wraps an existing connection pool, for deployments that
// share one pool across subsystems.
func NewWithPool(ctx context.Context, pool *pgxpool.Pool, migrateOnStart bool) (*Recorder, error) {
	r := &Recorder{pool: pool}
	if migrateOnStart {
		if err := r.migrate(ctx); err != nil {
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return r, nil
}

// Record inserts one append-only audit row.
func (r *Recorder) Record(ctx context.Context, rec *record.RequestRecord) error {
	fragmentsJSON, err := json.Marshal(rec.Fragments)
	if err != nil {
		return fmt.Errorf("marshaling fragments: %w", err)
	}
	tracesJSON, err := json.Marshal(rec.ToolTraces)
	if err != nil {
		return fmt.Errorf("marshaling tool traces: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO request_records (
			request_id, tenant, session_id,
			provider, model, streamed, status,
			user_message, assistant_text,
			instructions, fragments, tool_traces,
			usage_input_tokens, usage_output_tokens, usage_total_tokens,
			cost_input, cost_output, cost_total,
			cost_method, cost_failed, cost_table_version,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22
		)
	`,
		rec.RequestID, rec.Tenant, rec.SessionID,
		rec.Provider, rec.Model, rec.Streamed, string(rec.Status),
		rec.UserMessage, rec.AssistantText,
		rec.Instructions, fragmentsJSON, tracesJSON,
		rec.Usage.InputTokens, rec.Usage.OutputTokens, rec.Usage.TotalTokens,
		rec.Cost.Input.String(), rec.Cost.Output.String(), rec.Cost.Total.String(),
		string(rec.Cost.Method), rec.Cost.Failed, nullString(rec.Cost.TableVersion),
		rec.CreatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return record.ErrConflict
		}
		return fmt.Errorf("inserting request record: %w", err)
	}
	return nil
}

// Get retrieves one record by request ID within a tenant.
func (r *Recorder) Get(ctx context.Context, tenant, requestID string) (*record.RequestRecord, error) {
	var rec record.RequestRecord
	var status, costMethod string
	var costInput, costOutput, costTotal string
	var tableVersion *string
	var fragmentsJSON, tracesJSON []byte

	err := r.pool.QueryRow(ctx, `
		SELECT request_id, tenant, session_id,
		       provider, model, streamed, status,
		       user_message, assistant_text,
		       instructions, fragments, tool_traces,
		       usage_input_tokens, usage_output_tokens, usage_total_tokens,
		       cost_input::text, cost_output::text, cost_total::text,
		       cost_method, cost_failed, cost_table_version,
		       created_at
		FROM request_records
		WHERE tenant = $1 AND request_id = $2
	`, tenant, requestID).Scan(
		&rec.RequestID, &rec.Tenant, &rec.SessionID,
		&rec.Provider, &rec.Model, &rec.Streamed, &status,
		&rec.UserMessage, &rec.AssistantText,
		&rec.Instructions, &fragmentsJSON, &tracesJSON,
		&rec.Usage.InputTokens, &rec.Usage.OutputTokens, &rec.Usage.TotalTokens,
		&costInput, &costOutput, &costTotal,
		&costMethod, &rec.Cost.Failed, &tableVersion,
		&rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, record.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying request record: %w", err)
	}

	rec.Status = record.Status(status)
	rec.Cost.Method = billing.Method(costMethod)
	if tableVersion != nil {
		rec.Cost.TableVersion = *tableVersion
	}
	if rec.Cost.Input, err = decimal.NewFromString(costInput); err != nil {
		return nil, fmt.Errorf("parsing input cost: %w", err)
	}
	if rec.Cost.Output, err = decimal.NewFromString(costOutput); err != nil {
		return nil, fmt.Errorf("parsing output cost: %w", err)
	}
	if rec.Cost.Total, err = decimal.NewFromString(costTotal); err != nil {
		return nil, fmt.Errorf("parsing total cost: %w", err)
	}

	if len(fragmentsJSON) > 0 {
		if err := json.Unmarshal(fragmentsJSON, &rec.Fragments); err != nil {
			return nil, fmt.Errorf("unmarshaling fragments: %w", err)
		}
	}
	if len(tracesJSON) > 0 {
		if err := json.Unmarshal(tracesJSON, &rec.ToolTraces); err != nil {
			return nil, fmt.Errorf("unmarshaling tool traces: %w", err)
		}
	}

	return &rec, nil
}

// History reconstructs a session's conversation from its newest records,
// returned in chronological order.
func (r *Recorder) History(ctx context.Context, tenant, sessionID string, limit int) ([]api.Turn, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	rows, err := r.pool.Query(ctx, `
		SELECT user_message, assistant_text, tool_traces
		FROM (
			SELECT user_message, assistant_text, tool_traces, created_at
			FROM request_records
			WHERE tenant = $1 AND session_id = $2
			ORDER BY created_at DESC
			LIMIT $3
		) newest
		ORDER BY created_at ASC
	`, tenant, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying session history: %w", err)
	}
	defer rows.Close()

	var turns []api.Turn
	for rows.Next() {
		var userMsg, assistantText string
		var tracesJSON []byte
		if err := rows.Scan(&userMsg, &assistantText, &tracesJSON); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}

		turns = append(turns, api.Turn{Role: api.RoleUser, Content: userMsg})
		if assistantText != "" {
			turn := api.Turn{Role: api.RoleAssistant, Content: assistantText}
			if len(tracesJSON) > 0 {
				if err := json.Unmarshal(tracesJSON, &turn.ToolTraces); err != nil {
					return nil, fmt.Errorf("unmarshaling tool traces: %w", err)
				}
			}
			turns = append(turns, turn)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading history rows: %w", err)
	}
	return turns, nil
}

// HealthCheck verifies the database connection.
func (r *Recorder) HealthCheck(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases the connection pool.
func (r *Recorder) Close() error {
	r.pool.Close()
	return nil
}

// isDuplicateKey reports whether err is a unique constraint violation.
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// nullString converts an empty string to nil for nullable TEXT columns.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
