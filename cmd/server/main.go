// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/popsauce/internal/cache"
	"github.com/jason-s-yu/popsauce/internal/config"
	"github.com/jason-s-yu/popsauce/internal/database"
	"github.com/jason-s-yu/popsauce/internal/game"
	"github.com/jason-s-yu/popsauce/internal/questions"
	"github.com/jason-s-yu/popsauce/internal/server"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()

	logger := logrus.New()
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "help", "-h", "--help":
			fmt.Print(usage)
			return
		case "add":
			if len(os.Args) != 3 {
				fmt.Fprint(os.Stderr, usage)
				os.Exit(2)
			}
			store := openStore(ctx, cfg, logger)
			defer store.Close()
			if _, err := addQuestion(ctx, os.Args[2], os.Stdin, os.Stdout, store); err != nil {
				logger.Fatalf("add question: %v", err)
			}
			return
		default:
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
	}

	store := openStore(ctx, cfg, logger)
	defer store.Close()

	reg := game.NewRegistry(ctx, cfg.Game, store, logger)
	if cfg.RedisAddr != "" {
		rdb, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.Fatalf("%v", err)
		}
		defer rdb.Close()
		reg.Recorder = cache.NewPublisher(rdb, cfg.HistorianQueue)
		logger.WithField("queue", cfg.HistorianQueue).Info("publishing game actions to redis")
	}

	srv := server.New(reg, logger)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, ":"+cfg.Port)
	})
	if cfg.HTTPPort != "" {
		g.Go(func() error {
			return srv.ListenAndServeHTTP(gctx, ":"+cfg.HTTPPort)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
	logger.Info("server stopped")
}

// openStore opens the question store selected by QUESTION_STORE. Failing to
// open it is fatal.
func openStore(ctx context.Context, cfg config.Config, logger *logrus.Logger) questions.Store {
	switch cfg.QuestionStore {
	case config.StoreSQLite:
		store, err := questions.NewSQLiteStore(cfg.QuestionsDB)
		if err != nil {
			logger.Fatalf("open sqlite question store: %v", err)
		}
		logger.WithField("path", cfg.QuestionsDB).Info("using sqlite question store")
		return store
	case config.StorePostgres:
		pool := database.ConnectDB(ctx, logger)
		store, err := questions.NewPostgresStore(ctx, pool)
		if err != nil {
			logger.Fatalf("open postgres question store: %v", err)
		}
		logger.Info("using postgres question store")
		return store
	case config.StoreMemory:
		logger.Warn("using in-memory question store, questions are lost on exit")
		return questions.NewMemoryStore()
	}
	logger.Fatalf("%v: %q", questions.ErrUnknownBackend, cfg.QuestionStore)
	return nil
}
