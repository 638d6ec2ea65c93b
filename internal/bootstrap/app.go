package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"gopherai-search/internal/ai"
	"gopherai-search/internal/app"
	"gopherai-search/internal/config"
	"gopherai-search/internal/model"
	"gopherai-search/internal/pipeline"
	"gopherai-search/internal/platform/logging"
	mysqlClient "gopherai-search/internal/platform/mysql"
	rabbitmqClient "gopherai-search/internal/platform/rabbitmq"
	redisClient "gopherai-search/internal/platform/redis"
	"gopherai-search/internal/repository"
	"gopherai-search/internal/search"
	"gopherai-search/internal/session"
	"gopherai-search/internal/worker"
)

type App struct {
	Config *config.Config
	Logger *zap.Logger

	MySQL            *gorm.DB
	Redis            *redis.Client
	MQConn           *amqp.Connection
	ArchivePublisher *rabbitmqClient.ArchivePublisher
	ArchiveWorker    *worker.ArchiveWorker

	Store         session.Store
	AuthService   *app.AuthService
	ChatService   *app.ChatService
	UploadService *app.UploadService

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger, StartedAt: time.Now()}
	if err := a.initStore(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	a.initServices()

	logger.Info("application initialized",
		zap.String("env", cfg.App.Env),
		zap.String("store", cfg.Store.Driver),
		zap.Bool("archive", cfg.Store.Archive),
	)
	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	cfg := a.Config

	var durable *session.GormStore
	if cfg.NeedsMySQL() {
		db, err := mysqlClient.New(ctx, cfg.MySQLDSN())
		if err != nil {
			return err
		}
		a.MySQL = db
		if err := db.AutoMigrate(&model.User{}); err != nil {
			return fmt.Errorf("auto migrate tables failed: %w", err)
		}
		durable = session.NewGormStore(db)
		if err := durable.AutoMigrate(); err != nil {
			return err
		}
	}

	switch cfg.Store.Driver {
	case "memory":
		a.Store = session.NewMemoryStore()
	case "mysql":
		a.Store = durable
	case "redis":
		client, err := redisClient.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		a.Redis = client
		a.Store = session.NewRedisStore(client, cfg.Redis.KeyPrefix, time.Duration(cfg.Redis.TTLSeconds)*time.Second)

		if cfg.Store.Archive {
			conn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
			if err != nil {
				return err
			}
			a.MQConn = conn
			a.ArchivePublisher = rabbitmqClient.NewArchivePublisher(conn, cfg.RabbitMQ.ArchiveQueue)
			a.ArchiveWorker = worker.NewArchiveWorker(conn, durable, cfg.RabbitMQ.ArchiveQueue, a.Logger.Named("archive"))
			if err := a.ArchiveWorker.Start(ctx); err != nil {
				return fmt.Errorf("start archive worker failed: %w", err)
			}
			a.Store = session.NewArchivingStore(a.Store, a.ArchivePublisher, a.Logger.Named("archive"))
		}
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	return nil
}

func (a *App) initServices() {
	cfg := a.Config
	logger := a.Logger

	llmTimeout := time.Duration(cfg.LLM.TimeoutSeconds) * time.Second
	llm := ai.NewOpenAICompatibleClient(ai.ClientConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Timeout: llmTimeout,
	})

	// speech shares the completion provider unless configured separately
	speechBaseURL, speechKey := cfg.Speech.BaseURL, cfg.Speech.APIKey
	if speechKey == "" {
		speechBaseURL, speechKey = cfg.LLM.BaseURL, cfg.LLM.APIKey
	}
	if speechBaseURL == "" {
		speechBaseURL = cfg.LLM.BaseURL
	}
	speech := ai.NewOpenAICompatibleClient(ai.ClientConfig{
		BaseURL: speechBaseURL,
		APIKey:  speechKey,
		Timeout: llmTimeout,
	})

	searcher := search.NewTavilyClient(search.TavilyConfig{
		BaseURL: cfg.Search.BaseURL,
		APIKey:  cfg.Search.APIKey,
		Timeout: time.Duration(cfg.Search.TimeoutSeconds) * time.Second,
	})

	utility := ai.ChatConfig{Model: cfg.LLM.UtilityModel, Temperature: 0}
	planner := pipeline.NewSubQueryPlanner(llm, utility, cfg.Search.DeepSubQueries, logger.Named("planner"))

	deps := app.ChatDependencies{
		Store:      a.Store,
		Classifier: pipeline.NewClassifier(llm, utility, logger.Named("classifier")),
		Retriever: pipeline.NewRetriever(searcher, planner, pipeline.RetrieverConfig{
			MaxResults:     cfg.Search.MaxResults,
			DeepMaxResults: cfg.Search.DeepMaxResults,
		}, logger.Named("retriever")),
		Assembler: pipeline.NewAssembler(cfg.Pipeline.DocumentBudget, cfg.Pipeline.PreviewRows),
		Streamer: pipeline.NewStreamer(llm, pipeline.ModelProfiles{
			Fast:  ai.ChatConfig{Model: cfg.LLM.Model, Temperature: cfg.LLM.Temperature},
			Smart: ai.ChatConfig{Model: cfg.LLM.SmartModel, Temperature: cfg.LLM.SmartTemperature},
		}, logger.Named("streamer")),
		Sandbox:     pipeline.NewChartSandbox(time.Duration(cfg.Pipeline.SandboxTimeoutMS) * time.Millisecond),
		Speech:      speech,
		Transcriber: speech,
		Logger:      logger.Named("chat"),
	}
	if cfg.Image.APIKey != "" {
		deps.Images = ai.NewOpenAICompatibleClient(ai.ClientConfig{
			BaseURL: cfg.Image.BaseURL,
			APIKey:  cfg.Image.APIKey,
			Timeout: llmTimeout,
		})
	}

	a.ChatService = app.NewChatService(deps, app.ChatOptions{
		Image:            ai.ImageConfig{Model: cfg.Image.Model, Size: cfg.Image.Size},
		ImageFallbackURL: cfg.Image.FallbackURL,
		Speech: ai.SpeechConfig{
			TranscribeModel: cfg.Speech.TranscribeModel,
			TTSModel:        cfg.Speech.TTSModel,
			Voice:           cfg.Speech.Voice,
		},
		SpeechLanguage: cfg.Speech.Language,
		SpeechMaxChars: cfg.Speech.MaxChars,
	})

	var userRepo *repository.UserRepository
	if a.MySQL != nil {
		userRepo = repository.NewUserRepository(a.MySQL)
	}
	a.AuthService = app.NewAuthService(
		userRepo,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
	)
	a.UploadService = app.NewUploadService(a.Store, int64(cfg.Pipeline.MaxUploadMB)<<20)
}

// HealthChecks probes only the backends the configured store uses.
func (a *App) HealthChecks() map[string]func(ctx context.Context) error {
	checks := make(map[string]func(ctx context.Context) error)
	if a.MySQL != nil {
		checks["mysql"] = func(ctx context.Context) error { return mysqlClient.Ping(ctx, a.MySQL) }
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx, a.Redis) }
	}
	if a.MQConn != nil {
		checks["rabbitmq"] = func(context.Context) error { return rabbitmqClient.Ping(a.MQConn) }
	}
	return checks
}

func (a *App) Close() error {
	var closeErr error
	if a.ArchiveWorker != nil {
		a.ArchiveWorker.Close()
	}
	if a.ArchivePublisher != nil {
		if err := a.ArchivePublisher.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return closeErr
}
