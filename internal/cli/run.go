package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/config"
	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/gen"
	fileinfra "github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/infra/file"
	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/infra/memory"
	pginfra "github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/infra/postgres"
	redisinfra "github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/infra/redis"
	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/quiz"
	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/telegram"
	transport "github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/transport/http"
)

// NewRunCmd builds the CLI subcommand that starts the bot.
func NewRunCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the quiz bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), *configPath, *port)
		},
	}
}

func runBot(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable is required")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return fmt.Errorf("telegram api: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var store quiz.StateStore
	if redisClient != nil {
		store = redisinfra.NewStateStore(redisClient)
	} else {
		statePath := cfg.State.File
		if statePath == "" {
			statePath = "quiz_state.json"
		}
		store = fileinfra.NewStateStore(statePath)
	}

	bank, pool, err := buildBank(ctx, cfg, redisClient)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	generator := gen.NewClient(os.Getenv("GROQ_API_KEY"), cfg.LLM.BaseURL, cfg.LLM.Model)

	engine := quiz.New(quiz.Config{
		OpenWindow:   config.TTLDuration(cfg.Quiz.OpenWindow, 20*time.Second),
		Grace:        config.TTLDuration(cfg.Quiz.Grace, time.Second),
		Policy:       quiz.CompletionPolicy(cfg.Quiz.CompletionPolicy),
		VaguePhrases: cfg.Quiz.VaguePhrases,
	}, store, telegram.NewSender(api), generator, bank, quiz.TimerScheduler{})

	// A corrupt snapshot must stop the process here, never run on guesses.
	if err := engine.Restore(ctx); err != nil {
		return fmt.Errorf("restore quiz state: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var watchServer *http.Server
	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		})
		mux.HandleFunc("/watch", transport.NewWSHandler(engine).ServeWatch)

		watchServer = &http.Server{
			Addr:         ":" + finalPort,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			log.Printf("leaderboard watch server on :%s", finalPort)
			if err := watchServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("watch server failed: %v", err)
			}
		}()
	}

	handler := telegram.NewHandler(api, engine, cfg.Telegram.Owners)
	botDone := make(chan error, 1)
	go func() {
		botDone <- handler.Run(runCtx)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down...")
		cancel()
		<-botDone
	case err := <-botDone:
		if err != nil && err != context.Canceled {
			log.Printf("update loop stopped: %v", err)
		}
	case <-ctx.Done():
		log.Println("context canceled, shutting down...")
		<-botDone
	}

	if watchServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return watchServer.Shutdown(shutdownCtx)
	}
	return nil
}

// buildBank wires the question-set archive when Postgres is configured,
// fronted by a Redis or in-process cache. Without Postgres the bank is
// disabled and /loadset reports no archived sets.
func buildBank(ctx context.Context, cfg config.Config, redisClient *redis.Client) (quiz.SetBank, *pgxpool.Pool, error) {
	if cfg.Postgres.URL == "" {
		return nil, nil, nil
	}
	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return nil, nil, err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}

	setTTL := config.TTLDuration(cfg.Redis.SetTTL, 10*time.Minute)
	bank := pginfra.NewQuestionBank(pool)
	if redisClient != nil {
		return redisinfra.NewSetCache(redisClient, bank, setTTL), pool, nil
	}
	return memory.NewSetCache(bank, setTTL), pool, nil
}
