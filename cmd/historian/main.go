// cmd/historian/main.go is the entrypoint of the historian service, which persists game actions published by the server.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jason-s-yu/popsauce/internal/cache"
	"github.com/jason-s-yu/popsauce/internal/database"
	"github.com/jason-s-yu/popsauce/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool := database.ConnectDB(ctx, logger)
	defer pool.Close()
	sink, err := historian.NewPostgresSink(ctx, pool)
	if err != nil {
		logger.Fatalf("%v", err)
	}

	rdb, err := cache.ConnectRedis(getEnv("REDIS_ADDR", "localhost:6379"), getEnvInt("REDIS_DB", 0))
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer rdb.Close()

	hs := historian.New(rdb, getEnv("HISTORIAN_QUEUE_NAME", cache.DefaultQueueName), sink, logger)
	hs.BatchSize = getEnvInt("HISTORIAN_BATCH_SIZE", 20)
	hs.FlushDelay = time.Duration(getEnvInt("HISTORIAN_FLUSH_MS", 500)) * time.Millisecond
	hs.Inactivity = time.Duration(getEnvInt("GAME_INACTIVITY_TIMEOUT_SEC", 600)) * time.Second

	if err := hs.Run(ctx); err != nil {
		logger.Fatalf("historian exited: %v", err)
	}
	logger.Info("historian shutdown complete")
}

// getEnv retrieves an environment variable's value or returns a default.
func getEnv(key, defVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defVal
}

// getEnvInt retrieves an integer value from an environment variable or returns a default value.
func getEnvInt(key string, defVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defVal
	}
	return i
}
