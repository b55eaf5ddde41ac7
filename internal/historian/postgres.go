// internal/historian/postgres.go
package historian

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/popsauce/internal/database"
	"github.com/jason-s-yu/popsauce/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS games (
	id         UUID PRIMARY KEY,
	lobby_id   INTEGER NOT NULL,
	status     TEXT NOT NULL DEFAULT 'in_progress',
	winner_id  INTEGER,
	start_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	end_time   TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS game_actions (
	game_id        UUID NOT NULL REFERENCES games(id) ON DELETE CASCADE,
	action_index   INTEGER NOT NULL,
	actor_id       INTEGER NOT NULL,
	action_type    TEXT NOT NULL,
	action_payload JSONB,
	created_at     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (game_id, action_index)
);`

// PostgresSink stores actions in the games and game_actions tables.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink creates the tables if needed.
func NewPostgresSink(ctx context.Context, pool *pgxpool.Pool) (*PostgresSink, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("create historian tables: %w", err)
	}
	return &PostgresSink{pool: pool}, nil
}

// WriteActions inserts a batch in a single transaction.
func (s *PostgresSink) WriteActions(ctx context.Context, actions []models.GameAction) error {
	return database.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, a := range actions {
			if err := insertGameActionTx(ctx, tx, a); err != nil {
				return fmt.Errorf("insertGameActionTx: %w", err)
			}
		}
		return nil
	})
}

// MarkAbandoned marks a game as 'abandoned' if it was still 'in_progress'.
func (s *PostgresSink) MarkAbandoned(ctx context.Context, gameID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE games
		SET status = 'abandoned', end_time = NOW()
		WHERE id = $1 AND status = 'in_progress'`, gameID)
	return err
}

// insertGameActionTx upserts the game row, inserts the action and finalizes
// the game on its end action.
func insertGameActionTx(ctx context.Context, tx pgx.Tx, a models.GameAction) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO games (id, lobby_id, status, start_time)
		VALUES ($1, $2, 'in_progress', to_timestamp($3 / 1000.0))
		ON CONFLICT (id) DO NOTHING`, a.GameID, a.LobbyID, a.Timestamp)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(a.ActionPayload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO game_actions (game_id, action_index, actor_id, action_type, action_payload, created_at)
		VALUES ($1, $2, $3, $4, $5, to_timestamp($6 / 1000.0))
		ON CONFLICT (game_id, action_index) DO NOTHING`,
		a.GameID, a.ActionIndex, a.ActorID, a.ActionType, payload, a.Timestamp)
	if err != nil {
		return err
	}

	if a.ActionType == models.ActionEndGame {
		_, err = tx.Exec(ctx, `
			UPDATE games
			SET status = 'completed', winner_id = $2, end_time = to_timestamp($3 / 1000.0)
			WHERE id = $1 AND status = 'in_progress'`, a.GameID, a.ActorID, a.Timestamp)
	}
	return err
}
