// internal/questions/sqlite.go
package questions

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jason-s-yu/popsauce/internal/protocol"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultSQLitePath is the question bank file used when none is configured.
const DefaultSQLitePath = "questions_db.sqlite"

// SQLiteStore is the default question bank, a single sqlite file.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (creating if needed) the sqlite file at dbPath and
// ensures the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serializes writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, dbPath: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question TEXT NOT NULL,
		support_type INTEGER NOT NULL,
		support TEXT,
		valid_answers TEXT
	);

	CREATE TABLE IF NOT EXISTS lobby_history (
		lobby_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		PRIMARY KEY (lobby_id, question_id),
		FOREIGN KEY (question_id) REFERENCES questions(id) ON DELETE CASCADE
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RandomQuestions(ctx context.Context, lobbyID, n int) ([]Question, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, question, support_type, support, valid_answers FROM questions
		WHERE id NOT IN (SELECT question_id FROM lobby_history WHERE lobby_id = ?)
		ORDER BY RANDOM() LIMIT ?`, lobbyID, n)
	if err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}
	var batch []Question
	for rows.Next() {
		var (
			q       Question
			st      int64
			support sql.NullString
			answers sql.NullString
		)
		if err := rows.Scan(&q.ID, &q.Text, &st, &support, &answers); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.SupportType = protocol.SupportType(st)
		q.Support = support.String
		q.Answers = ParseAnswers(answers.String)
		batch = append(batch, q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}

	for _, q := range batch {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO lobby_history (lobby_id, question_id) VALUES (?, ?)`,
			lobbyID, q.ID,
		); err != nil {
			return nil, fmt.Errorf("record question %d for lobby %d: %w", q.ID, lobbyID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return batch, nil
}

func (s *SQLiteStore) WipeLobbyHistory(ctx context.Context, lobbyID int) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM lobby_history WHERE lobby_id = ?`, lobbyID); err != nil {
		return fmt.Errorf("wipe history of lobby %d: %w", lobbyID, err)
	}
	return nil
}

// DestroyLobbyHistory is the same as a wipe here: history rows live in one
// shared table rather than a table per lobby.
func (s *SQLiteStore) DestroyLobbyHistory(ctx context.Context, lobbyID int) error {
	return s.WipeLobbyHistory(ctx, lobbyID)
}

func (s *SQLiteStore) InsertQuestion(ctx context.Context, q Question) (int64, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO questions (question, support_type, support, valid_answers) VALUES (?, ?, ?, ?)`,
		q.Text, int64(q.SupportType), q.Support, JoinAnswers(q.Answers),
	)
	if err != nil {
		return 0, fmt.Errorf("insert question: %w", err)
	}
	return res.LastInsertId()
}
