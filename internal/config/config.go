// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jason-s-yu/popsauce/internal/game"
	"github.com/jason-s-yu/popsauce/internal/questions"
	"github.com/sirupsen/logrus"
)

// Question store backends selectable with QUESTION_STORE.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config is the process configuration, read from the environment. A .env
// file is loaded by the binaries through godotenv/autoload.
type Config struct {
	Port     string
	HTTPPort string
	LogLevel logrus.Level

	Game game.Config

	QuestionStore string
	QuestionsDB   string

	RedisAddr      string
	RedisDB        int
	HistorianQueue string
}

// Load reads the configuration from the environment, falling back to the
// defaults for anything unset or unparsable.
func Load() Config {
	def := game.DefaultConfig()

	cfg := Config{
		Port:     getEnv("PORT", "7677"),
		HTTPPort: getEnv("HTTP_PORT", ""),
		LogLevel: getEnvLevel("LOG_LEVEL", logrus.InfoLevel),

		Game: game.Config{
			MaxPlayers:         getEnvInt("MAX_PLAYERS", def.MaxPlayers),
			MaxLobbies:         getEnvInt("MAX_LOBBIES", def.MaxLobbies),
			MaxPlayersPerLobby: getEnvInt("MAX_PLAYERS_PER_LOBBY", def.MaxPlayersPerLobby),
			MinPlayers:         def.MinPlayers,
			BatchSize:          getEnvInt("QUESTIONS_BATCH", def.BatchSize),
			PollInterval:       def.PollInterval,
			Rules: game.Rules{
				PointsToWin:          getEnvInt("POINTS_TO_WIN", def.Rules.PointsToWin),
				TimeBeforeStart:      getEnvDuration("TIME_BEFORE_GAME_STARTS", def.Rules.TimeBeforeStart),
				TimeToAnswer:         getEnvDuration("TIME_TO_ANSWER", def.Rules.TimeToAnswer),
				TimeBetweenQuestions: getEnvDuration("TIME_INBETWEEN_QUESTIONS", def.Rules.TimeBetweenQuestions),
			},
		},

		QuestionStore: strings.ToLower(getEnv("QUESTION_STORE", StoreSQLite)),
		QuestionsDB:   getEnv("QUESTIONS_DB", questions.DefaultSQLitePath),

		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		HistorianQueue: getEnv("HISTORIAN_QUEUE_NAME", "popsauce_actions"),
	}
	return cfg
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// getEnvDuration accepts Go durations ("1500ms") or plain seconds ("20").
func getEnvDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}

func getEnvLevel(key string, def logrus.Level) logrus.Level {
	lvl, err := logrus.ParseLevel(getEnv(key, ""))
	if err != nil {
		return def
	}
	return lvl
}
