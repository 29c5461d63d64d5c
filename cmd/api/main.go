package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"

	"github.com/altiplano-labs/archivador/internal/ai"
	"github.com/altiplano-labs/archivador/internal/api/handlers"
	"github.com/altiplano-labs/archivador/internal/api/router"
	"github.com/altiplano-labs/archivador/internal/bot"
	appconfig "github.com/altiplano-labs/archivador/internal/config"
	"github.com/altiplano-labs/archivador/internal/ingest"
	"github.com/altiplano-labs/archivador/internal/intent"
	"github.com/altiplano-labs/archivador/internal/linkcache"
	"github.com/altiplano-labs/archivador/internal/media"
	"github.com/altiplano-labs/archivador/internal/messaging"
	"github.com/altiplano-labs/archivador/internal/observability/metrics"
	"github.com/altiplano-labs/archivador/internal/retrieval"
	"github.com/altiplano-labs/archivador/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting archivador API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)

	loc, err := time.LoadLocation(cfg.LocalTimezone)
	if err != nil {
		logger.Warn("invalid LOCAL_TIMEZONE, falling back to UTC", "value", cfg.LocalTimezone)
		loc = time.UTC
	}

	blobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize blob store", "error", err)
		os.Exit(1)
	}

	llm, transcriber, visionModel, err := buildAIClients(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize AI clients", "error", err)
		os.Exit(1)
	}
	llm = ai.NewRetryClient(llm, cfg.AIRetryMaxAttempts, cfg.AIRetryBaseDelay, logger)

	botMetrics := metrics.NewBotMetrics(nil)
	repo := media.NewRepository(pool)
	links := linkcache.NewRedisCache(redisClient, cfg.EphemeralLinkTTL)
	sender := messaging.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger)
	fetcher := messaging.NewTwilioMediaFetcher(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.MediaFetchTimeout, logger)
	pipeline := ingest.NewPipeline(repo, blobs, llm, transcriber, intent.NewSaveIntentDetector(llm, logger), visionModel, loc, botMetrics, logger)

	assistant := bot.NewAssistant(bot.Config{
		Store:         repo,
		Classifier:    intent.NewClassifier(llm, logger),
		Resolver:      retrieval.NewResolver(repo, loc),
		Sessions:      retrieval.NewSessionManager(retrieval.NewRedisSelectionStore(redisClient, cfg.PendingSelectionTTL)),
		Pipeline:      pipeline,
		Blobs:         blobs,
		Links:         links,
		Sender:        sender,
		Fetcher:       fetcher,
		History:       bot.NewRedisHistoryStore(redisClient, cfg.HistoryTTL),
		LLM:           llm,
		ChatModel:     cfg.OpenAIChatModel,
		PublicBaseURL: cfg.PublicBaseURL,
		Metrics:       botMetrics,
		Logger:        logger,
	})

	routerCfg := &router.Config{
		Logger:           logger,
		MessagingHandler: messaging.NewHandler(cfg.TwilioWebhookSecret, assistant, botMetrics, logger),
		FilesHandler:     linkcache.NewHandler(links, botMetrics, logger),
		AdminMedia:       handlers.NewAdminMediaHandler(repo, blobs, logger),
		AdminToken:       cfg.AdminToken,
		MetricsHandler:   promhttp.Handler(),
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func buildBlobStore(ctx context.Context, cfg *appconfig.Config) (media.BlobStore, error) {
	if cfg.BlobBackend == "s3" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, err
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.AWSEndpoint != "" {
				o.BaseEndpoint = aws.String(cfg.AWSEndpoint)
				o.UsePathStyle = true
			}
		})
		return media.NewS3BlobStore(client, cfg.MediaBucket, cfg.MediaPrefix)
	}
	return media.NewLocalBlobStore(cfg.MediaRoot)
}

// buildAIClients picks the completion provider. Transcription always runs on
// OpenAI Whisper; with Bedrock as the chat provider it is enabled only when
// an OpenAI key is also present.
func buildAIClients(ctx context.Context, cfg *appconfig.Config) (ai.LLMClient, ai.Transcriber, string, error) {
	if cfg.AIProvider == "bedrock" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, nil, "", err
		}
		llm := ai.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID)
		var transcriber ai.Transcriber
		if cfg.OpenAIAPIKey != "" {
			transcriber = ai.NewOpenAIClient(openai.NewClient(cfg.OpenAIAPIKey), cfg.OpenAIChatModel, cfg.OpenAIWhisperModel)
		}
		return llm, transcriber, cfg.BedrockModelID, nil
	}

	client := ai.NewOpenAIClient(openai.NewClient(cfg.OpenAIAPIKey), cfg.OpenAIChatModel, cfg.OpenAIWhisperModel)
	return client, client, cfg.OpenAIVisionModel, nil
}
