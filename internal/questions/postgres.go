// internal/questions/postgres.go
package questions

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/popsauce/internal/database"
	"github.com/jason-s-yu/popsauce/internal/protocol"
)

// PostgresStore keeps the question bank in Postgres, for deployments that
// already run the historian database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an open pool and ensures the schema exists. The
// pool stays owned by the caller; Close is a no-op.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool}
	schema := `
	CREATE TABLE IF NOT EXISTS questions (
		id BIGSERIAL PRIMARY KEY,
		question TEXT NOT NULL,
		support_type INTEGER NOT NULL,
		support TEXT,
		valid_answers TEXT
	);

	CREATE TABLE IF NOT EXISTS lobby_history (
		lobby_id INTEGER NOT NULL,
		question_id BIGINT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
		PRIMARY KEY (lobby_id, question_id)
	);
	`
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to initialize question schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) Close() error { return nil }

func (s *PostgresStore) RandomQuestions(ctx context.Context, lobbyID, n int) ([]Question, error) {
	var batch []Question
	err := database.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, question, support_type, COALESCE(support, ''), COALESCE(valid_answers, '')
			FROM questions
			WHERE id NOT IN (SELECT question_id FROM lobby_history WHERE lobby_id = $1)
			ORDER BY RANDOM() LIMIT $2`, lobbyID, n)
		if err != nil {
			return err
		}
		for rows.Next() {
			var (
				q       Question
				st      int32
				answers string
			)
			if err := rows.Scan(&q.ID, &q.Text, &st, &q.Support, &answers); err != nil {
				rows.Close()
				return err
			}
			q.SupportType = protocol.SupportType(st)
			q.Answers = ParseAnswers(answers)
			batch = append(batch, q)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, q := range batch {
			if _, err := tx.Exec(ctx,
				`INSERT INTO lobby_history (lobby_id, question_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				lobbyID, q.ID,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("random questions for lobby %d: %w", lobbyID, err)
	}
	return batch, nil
}

func (s *PostgresStore) WipeLobbyHistory(ctx context.Context, lobbyID int) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM lobby_history WHERE lobby_id = $1`, lobbyID); err != nil {
		return fmt.Errorf("wipe history of lobby %d: %w", lobbyID, err)
	}
	return nil
}

func (s *PostgresStore) DestroyLobbyHistory(ctx context.Context, lobbyID int) error {
	return s.WipeLobbyHistory(ctx, lobbyID)
}

func (s *PostgresStore) InsertQuestion(ctx context.Context, q Question) (int64, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO questions (question, support_type, support, valid_answers) VALUES ($1, $2, $3, $4) RETURNING id`,
		q.Text, int32(q.SupportType), q.Support, JoinAnswers(q.Answers),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert question: %w", err)
	}
	return id, nil
}
