package main

import (
	"context"
	"log"
	"net/http"

	webAdapter "billing-console/internal/adapters/web"
	"billing-console/internal/ai"
	"billing-console/internal/app"
	"billing-console/internal/config"
	"billing-console/internal/core"
	"billing-console/internal/db"
	"billing-console/internal/dispatch"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	userService := core.NewUserService(pool)
	clientService := core.NewClientService(pool)
	loteService := core.NewLoteService(pool, clientService)
	adjustmentService := core.NewAdjustmentService(pool)

	var dispatcher *dispatch.Dispatcher
	if cfg.GoogleCredentialsFile != "" {
		folders, err := dispatch.NewDriveStore(ctx, cfg.GoogleCredentialsFile)
		if err != nil {
			logger.Fatal("drive", zap.Error(err))
		}
		sheets, err := dispatch.NewSheetsStore(ctx, cfg.GoogleCredentialsFile)
		if err != nil {
			logger.Fatal("sheets", zap.Error(err))
		}
		opts := dispatch.DefaultOptions(cfg.DriveRootFolderID, cfg.LegacySpreadsheetID, cfg.LegacySheetRange)
		opts.ChunkPause = cfg.DispatchChunkPause
		opts.FolderDelay = cfg.DispatchFolderDelay
		dispatcher = dispatch.NewDispatcher(
			folders,
			dispatch.NewHTTPQueueClient(cfg.InvoiceQueueURL),
			dispatch.NewHTTPQueueClient(cfg.HoursQueueURL),
			sheets,
			dispatch.NewNotifier(cfg.LegacyWebhookURL, logger),
			loteService,
			logger,
			opts,
		)
	} else {
		logger.Warn("GOOGLE_CREDENTIALS_FILE not set; dispatch and document storage disabled")
	}

	var mailer dispatch.Mailer
	if cfg.SMTPHost != "" {
		mailer = dispatch.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	}

	var suggester ai.SuggestionService
	if cfg.OpenAIAPIKey != "" {
		suggester = ai.NewSuggester(cfg.OpenAIAPIKey)
	} else {
		logger.Warn("OPENAI_API_KEY not set; match suggestions run without the advisory model")
	}

	svc := app.NewAppService(userService, clientService, loteService, adjustmentService,
		dispatcher, mailer, suggester, logger)

	handler := webAdapter.NewHandler(svc, cfg.AllowedOrigins, cfg.JWTSecret, cfg.JWTExpiry, logger)

	logger.Info("server starting", zap.String("port", cfg.ServerPort))
	if err := http.ListenAndServe(":"+cfg.ServerPort, handler); err != nil {
		logger.Fatal("server", zap.Error(err))
	}
}
