package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trypto13/jeet-tracker/internal/bot"
	"github.com/trypto13/jeet-tracker/internal/handlers"
	"github.com/trypto13/jeet-tracker/internal/history"
	"github.com/trypto13/jeet-tracker/internal/identity"
	"github.com/trypto13/jeet-tracker/internal/indexer"
	"github.com/trypto13/jeet-tracker/internal/matcher"
	"github.com/trypto13/jeet-tracker/internal/notifier"
	"github.com/trypto13/jeet-tracker/internal/pipeline"
	"github.com/trypto13/jeet-tracker/internal/prices"
	"github.com/trypto13/jeet-tracker/internal/rpc"
	"github.com/trypto13/jeet-tracker/internal/scanner"
	"github.com/trypto13/jeet-tracker/internal/store"
	"github.com/trypto13/jeet-tracker/internal/utxo"
	"github.com/trypto13/jeet-tracker/shared/config"
	"github.com/trypto13/jeet-tracker/shared/env"
	"github.com/trypto13/jeet-tracker/shared/logger"
	"github.com/trypto13/jeet-tracker/shared/notifications"
)

const mongoDatabase = "jeet_tracker"

func main() {
	defer func() {
		if r := recover(); r != nil {
			log.Panicf("FATAL PANIC RECOVERY: %v", r)
		}
	}()

	if err := env.LoadEnv(); err != nil {
		log.Fatalf("FATAL: Failed to load environment variables: %v", err)
	}

	cfg, errCfg := config.LoadConfig("config.yaml")
	if errCfg != nil {
		log.Fatalf("FATAL: Failed to load config.yaml: %v", errCfg)
	}
	config.SetGlobalConfig(cfg)

	log.Println("INFO: Initializing Telegram notifications...")
	if err := notifications.InitTelegramBot(); err != nil {
		log.Fatalf("FATAL: Failed to initialize Telegram bot: %v", err)
	}

	loggerCfg := logger.Config{
		Level:          cfg.Logging.Level,
		Environment:    cfg.App.Environment,
		EnableTelegram: env.AdminChatID != 0,
	}
	appLogger, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	appLogger.Info("Application logger initialized successfully.")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLogger.Info("Connecting to document store...")
	mongoCtx, cancelMongo := context.WithTimeout(ctx, 15*time.Second)
	mongoClient, errDb := mongo.Connect(mongoCtx, options.Client().ApplyURI(env.MongoURI))
	if errDb == nil {
		errDb = mongoClient.Ping(mongoCtx, nil)
	}
	cancelMongo()
	if errDb != nil {
		appLogger.Fatal("Document store connection failed", "error", errDb)
	}
	st, errStore := store.New(ctx, mongoClient.Database(mongoDatabase), appLogger)
	if errStore != nil {
		appLogger.Fatal("Store initialization failed", "error", errStore)
	}
	appLogger.Info("Document store connected and cache hydrated.")

	netParams, errNet := identity.NetParams(env.Network)
	if errNet != nil {
		appLogger.Fatal("Invalid network", "network", env.Network, "error", errNet)
	}

	chainRPC := rpc.NewClient(env.RPCURL, appLogger)
	indexerAPI := indexer.NewClient(env.IndexerURL, appLogger)
	resolver := identity.NewResolver(chainRPC, netParams, appLogger)
	tracker := utxo.NewTracker(chainRPC, st, appLogger)
	blockScanner := scanner.New(appLogger)
	m := matcher.New(st, appLogger)
	priceCache := prices.NewCache(indexerAPI, time.Duration(cfg.Prices.CacheTTLSec)*time.Second, appLogger)
	historyScanner := history.New(indexerAPI, st, appLogger)
	dispatcher := notifier.New(st, notifications.Sender{}, appLogger)

	appLogger.Info("Initializing Telegram bot command listener...")
	botDeps := &bot.Dependencies{
		Store:     st,
		Resolver:  resolver,
		RPC:       chainRPC,
		Indexer:   indexerAPI,
		Prices:    priceCache,
		History:   historyScanner,
		Messenger: notifications.Sender{},
		Limits:    cfg.Limits,
	}
	if err := bot.InitializeBot(appLogger, botDeps); err != nil {
		appLogger.Error("Failed to initialize Telegram bot listener", "error", err)
	} else {
		go bot.StartListening(ctx)
	}

	appLogger.Info("Setting up web server...")
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type"}
	router.Use(cors.New(corsConfig))
	handlers.RegisterRoutes(router, appLogger, st)

	go func() {
		serverAddr := ":" + env.Port
		appLogger.Info("Starting web server", "address", serverAddr)
		if err := router.Run(serverAddr); err != nil {
			appLogger.Fatal("Could not start web server.", "error", err)
		}
	}()

	// Daily sweep: reset the once-per-session expiry notices and surface
	// soon-to-expire subscriptions in the logs.
	sweeper := cron.New()
	if _, err := sweeper.AddFunc("13 4 * * *", func() {
		dispatcher.ResetExpiryNotices()
		now := time.Now().UTC()
		for _, chatID := range st.ExpiringChats(now, now.AddDate(0, 0, 3)) {
			appLogger.Info("Paid subscription expiring soon", "chatID", chatID)
		}
	}); err != nil {
		appLogger.Error("Failed to schedule expiry sweep", "error", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	pipelineCfg := pipeline.Config{
		PollInterval:  time.Duration(cfg.Scanner.PollIntervalMs) * time.Millisecond,
		BlockBatch:    cfg.Scanner.BlockBatchSize,
		TxLRUSize:     cfg.Scanner.TxLRUSize,
		EventFetchMax: cfg.Scanner.EventFetchMax,
	}
	if env.PollIntervalMs > 0 {
		pipelineCfg.PollInterval = time.Duration(env.PollIntervalMs) * time.Millisecond
	}
	orchestrator := pipeline.NewOrchestrator(st, chainRPC, indexerAPI, resolver, tracker, blockScanner, m, dispatcher, pipelineCfg, appLogger)

	appLogger.Info("Application startup complete. Watching the chain...")
	orchestrator.Run(ctx)

	appLogger.Info("Shutting down.")
	disconnectCtx, cancelDisconnect := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelDisconnect()
	if err := mongoClient.Disconnect(disconnectCtx); err != nil {
		appLogger.Warn("Document store disconnect failed", "error", err)
	}
}
