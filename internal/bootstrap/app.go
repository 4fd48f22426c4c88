package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"bloodtest-backend/internal/analyses"
	"bloodtest-backend/internal/health"
	"bloodtest-backend/internal/llm"
	"bloodtest-backend/internal/llm/gemini"
	"bloodtest-backend/internal/queue"
	"bloodtest-backend/internal/shared/config"
	"bloodtest-backend/internal/shared/server"
	"bloodtest-backend/internal/shared/storage/db"
	"bloodtest-backend/internal/shared/storage/object"
	localstore "bloodtest-backend/internal/shared/storage/object/local"
	s3store "bloodtest-backend/internal/shared/storage/object/s3"
)

// App holds the shared dependency graph for both binaries. The API
// uses Router/Service/Handler; the worker uses Consumer/Processor/
// Sweeper. Both are built the same way so their wiring cannot drift.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB

	Store       object.ObjectStore
	Queue       queue.Client
	Consumer    queue.Consumer
	QueuePinger queue.Pinger
	LLM         llm.Client

	Repo      analyses.Repo
	Service   *analyses.Service
	Processor *analyses.Processor
	Sweeper   *analyses.Sweeper
	Handler   *analyses.Handler
	Health    *health.Service
}

// Build prepares the full dependency graph and router.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	return build(ctx, cfg, db.OptionsFromEnv(db.DefaultServerOptions()))
}

// BuildWorker builds the same graph with a pool sized for a worker,
// which holds few connections but holds them across long model calls.
func BuildWorker(ctx context.Context, cfg config.Config) (*App, error) {
	return build(ctx, cfg, db.OptionsFromEnv(db.DefaultWorkerOptions()))
}

func build(ctx context.Context, cfg config.Config, dbOpts db.Options) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}

	sqlDB, err := buildDB(ctx, cfg, dbOpts)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client, consumer, pinger, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	llmClient, err := buildLLM(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:      cfg,
		DB:          sqlDB,
		Store:       store,
		Queue:       client,
		Consumer:    consumer,
		QueuePinger: pinger,
		LLM:         llmClient,
	}

	if sqlDB != nil {
		app.Repo = &analyses.PGRepo{DB: sqlDB}
	} else {
		app.Repo = analyses.NewMemoryRepo()
	}

	app.Service = analyses.NewService(app.Repo, app.Store, app.Queue)
	app.Processor = analyses.NewProcessor(app.Repo, app.Store, app.LLM, cfg.TaskSoftTimeLimit, cfg.TaskTimeLimit)
	app.Sweeper = analyses.NewSweeper(
		app.Repo,
		time.Duration(cfg.RetentionDays)*24*time.Hour,
		cfg.TaskTimeLimit+cfg.SweepInterval,
	)
	app.Handler = analyses.NewHandler(app.Service)
	app.Health = health.NewService(sqlDB, app.QueuePinger)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          cfg,
		AnalysisHandler: app.Handler,
		Health:          app.Health,
	})

	return app, nil
}

// Close releases broker and database connections.
func (a *App) Close() {
	if a.Consumer != nil {
		if err := a.Consumer.Close(); err != nil {
			log.Printf("bootstrap: close queue: %v", err)
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			log.Printf("bootstrap: close db: %v", err)
		}
	}
}

func buildDB(ctx context.Context, cfg config.Config, opts db.Options) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repository")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repository: %v", err)
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
	default:
		return localstore.New(cfg.DataDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, queue.Consumer, queue.Pinger, error) {
	switch cfg.QueueBroker {
	case "rabbitmq":
		q, err := queue.NewRabbitQueue(cfg.QueueURL, cfg.QueueName, cfg.WorkerConcurrency)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		return q, q, q, nil
	case "sqs":
		if strings.TrimSpace(cfg.SQSQueueURL) == "" {
			return nil, nil, nil, fmt.Errorf("QUEUE_BROKER=sqs requires SQS_QUEUE_URL")
		}
		q, err := queue.NewSQSQueue(ctx, cfg.SQSQueueURL, cfg.AWSRegion)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect sqs: %w", err)
		}
		return q, q, q, nil
	case "memory":
		q := queue.NewMemoryQueue(0)
		return q, q, q, nil
	default:
		q, err := queue.NewRedisQueue(ctx, cfg.QueueURL, cfg.QueueName)
		if err != nil {
			if isDevLike(cfg.Env) {
				log.Printf("bootstrap: redis connect failed; using in-process queue: %v", err)
				mq := queue.NewMemoryQueue(0)
				return mq, mq, mq, nil
			}
			return nil, nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return q, q, q, nil
	}
}

func buildLLM(cfg config.Config) (llm.Client, error) {
	if cfg.LLMProvider != "gemini" || strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: no LLM credentials; analysis jobs will fail until configured")
			return llm.PlaceholderClient{}, nil
		}
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	return gemini.NewClient(cfg.GeminiAPIKey, cfg.LLMModel)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
