// internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "HTTP_PORT", "LOG_LEVEL", "MAX_PLAYERS", "TIME_TO_ANSWER", "QUESTION_STORE", "REDIS_ADDR"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	assert.Equal(t, "7677", cfg.Port)
	assert.Empty(t, cfg.HTTPPort)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	assert.Equal(t, 64, cfg.Game.MaxPlayers)
	assert.Equal(t, 16, cfg.Game.MaxLobbies)
	assert.Equal(t, 100, cfg.Game.Rules.PointsToWin)
	assert.Equal(t, 20*time.Second, cfg.Game.Rules.TimeToAnswer)
	assert.Equal(t, StoreSQLite, cfg.QuestionStore)
	assert.Equal(t, "questions_db.sqlite", cfg.QuestionsDB)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, "popsauce_actions", cfg.HistorianQueue)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MAX_PLAYERS", "8")
	t.Setenv("POINTS_TO_WIN", "bogus")
	t.Setenv("TIME_TO_ANSWER", "15")
	t.Setenv("TIME_INBETWEEN_QUESTIONS", "1500ms")
	t.Setenv("QUESTION_STORE", "Postgres")

	cfg := Load()
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
	assert.Equal(t, 8, cfg.Game.MaxPlayers)
	assert.Equal(t, 100, cfg.Game.Rules.PointsToWin, "unparsable values keep the default")
	assert.Equal(t, 15*time.Second, cfg.Game.Rules.TimeToAnswer)
	assert.Equal(t, 1500*time.Millisecond, cfg.Game.Rules.TimeBetweenQuestions)
	assert.Equal(t, StorePostgres, cfg.QuestionStore)
}
