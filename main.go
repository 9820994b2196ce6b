package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/NoaSkape/firefly-estimator-sub005/common/auth"
	apperrors "github.com/NoaSkape/firefly-estimator-sub005/common/errors"
	"github.com/NoaSkape/firefly-estimator-sub005/common/logger"
	commonmw "github.com/NoaSkape/firefly-estimator-sub005/common/middleware"
	"github.com/NoaSkape/firefly-estimator-sub005/config"
	"github.com/NoaSkape/firefly-estimator-sub005/controllers"
	"github.com/NoaSkape/firefly-estimator-sub005/database"
	"github.com/NoaSkape/firefly-estimator-sub005/models"
	aws_pkg "github.com/NoaSkape/firefly-estimator-sub005/pkg/aws"
	"github.com/NoaSkape/firefly-estimator-sub005/repository"
	"github.com/NoaSkape/firefly-estimator-sub005/routes"
	"github.com/NoaSkape/firefly-estimator-sub005/services"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const serviceName = "firefly-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	ctx := context.Background()

	// --- AWS setup ---
	awsCfg, err := aws_pkg.LoadAWSConfig(ctx, cfg.AWSRegion, cfg.AWSEndpoint)
	if err != nil {
		panic("failed to load AWS config: " + err.Error())
	}

	// --- Logger (optionally tee'd to CloudWatch Logs) ---
	var log *zap.Logger
	if cfg.CloudWatchEnabled {
		cw, cwErr := aws_pkg.NewCloudWatchLogsClient(ctx, awsCfg, cfg.CloudWatchLogGroup, serviceName)
		if cwErr != nil {
			log, err = logger.Initialize(cfg.Env)
			if err == nil {
				log.Warn("CloudWatch Logs unavailable, logging to stdout only", zap.Error(cwErr))
			}
		} else {
			log, err = logger.InitializeWithWriter(cfg.Env, cw)
		}
	} else {
		log, err = logger.Initialize(cfg.Env)
	}
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	if cfg.AWSUseSecrets {
		if err := cfg.ApplySecrets(ctx, aws_pkg.NewSecretsClient(awsCfg)); err != nil {
			log.Fatal("Failed to load secrets", zap.Error(err))
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}

	// --- Database ---
	mongoClient, db, err := database.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.Fatal("MongoDB connection failed", zap.Error(err))
	}
	if err := repository.EnsureIndexes(ctx, db); err != nil {
		log.Warn("Failed to ensure indexes", zap.Error(err))
	}

	// --- Redis (optional) ---
	var (
		redisClient *redis.Client
		cache       repository.CatalogCache = repository.NoopCatalogCache{}
		locker      repository.Locker       = repository.NewLocalLocker()
	)
	if cfg.RedisURL != "" {
		redisClient, err = database.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn("Redis unavailable, using in-process cache and locks", zap.Error(err))
		} else {
			cache = repository.NewRedisCatalogCache(redisClient, cfg.ModelCacheTTL, log)
			locker = repository.NewRedisLocker(redisClient)
		}
	}

	// --- AWS clients ---
	metricsClient := aws_pkg.NewMetricsClient(awsCfg, cfg.MetricsNamespace, cfg.CloudWatchEnabled)
	events := services.NewEventPublisher(aws_pkg.NewSNSClient(awsCfg), cfg.EventsSNSTopicARN, log)

	var presigner aws_pkg.UploadPresigner
	if cfg.S3Bucket != "" {
		presigner = aws_pkg.NewS3Presigner(awsCfg, cfg.S3Bucket)
	} else {
		log.Warn("S3_BUCKET not set, model image uploads are disabled")
	}

	var (
		queue      services.EventQueue
		trackQueue *aws_pkg.SQSQueue
	)
	if cfg.AnalyticsQueueURL != "" {
		trackQueue = aws_pkg.NewSQSQueue(awsCfg, cfg.AnalyticsQueueURL, log)
		queue = trackQueue
	}

	verifier, err := auth.NewVerifier(cfg.ClerkJWTKey, cfg.JWTSecret, cfg.ClerkIssuer, cfg.AdminUserIDs)
	if err != nil {
		log.Fatal("Failed to build token verifier", zap.Error(err))
	}

	// --- Dependency injection ---
	modelRepo := repository.NewMongoModelRepository(db)
	buildRepo := repository.NewMongoBuildRepository(db)
	orderRepo := repository.NewMongoOrderRepository(db)
	transferRepo := repository.NewMongoBankTransferRepository(db)
	customerRepo := repository.NewMongoCustomerRepository(db)
	trackingRepo := repository.NewMongoTrackingRepository(db)

	rules := services.PricingRules{
		DepositPercent: cfg.DepositPercent,
		TaxRateBps:     cfg.TaxRateBps,
		DeliveryFee:    cfg.DeliveryFeeCents,
	}
	loc := cfg.Location()

	catalogService := services.NewCatalogService(modelRepo, cache, presigner, metricsClient, services.CatalogConfig{
		Rules:        rules,
		ImagePrefix:  cfg.S3Prefix,
		AssetBaseURL: cfg.AssetBaseURL,
		UploadExpiry: 15 * time.Minute,
	}, log)
	buildService := services.NewBuildService(buildRepo, modelRepo, orderRepo, customerRepo, locker, events, metricsClient, services.BuildConfig{
		Rules:           rules,
		ContractVersion: cfg.ContractVersion,
		Currency:        cfg.Currency,
	}, log)
	orderService := services.NewOrderService(orderRepo, events, log)
	paymentService := services.NewPaymentService(orderRepo, transferRepo, customerRepo,
		services.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret),
		locker, events, metricsClient, services.PaymentConfig{
			Currency: cfg.Currency,
			Bank: models.WireInstructions{
				BankName:      cfg.Bank.BankName,
				AccountName:   cfg.Bank.AccountName,
				RoutingNumber: cfg.Bank.RoutingNumber,
				AccountNumber: cfg.Bank.AccountNumber,
			},
		}, log)
	trackingService := services.NewTrackingService(trackingRepo, queue, metricsClient, log)
	analyticsService := services.NewAnalyticsService(orderRepo, trackingRepo, services.AnalyticsConfig{
		Timezone:      cfg.AnalyticsTimezone,
		LifespanYears: cfg.CLVLifespanYears,
	}, log)
	customerService := services.NewCustomerService(customerRepo, orderRepo, cfg.CLVLifespanYears, log)
	reportService := services.NewReportService(orderRepo, loc, log)

	ctl := routes.Controllers{
		Catalog:   controllers.NewCatalogController(catalogService),
		Builds:    controllers.NewBuildController(buildService),
		Orders:    controllers.NewOrderController(orderService, paymentService, loc),
		Payments:  controllers.NewPaymentController(paymentService, log),
		Analytics: controllers.NewAnalyticsController(trackingService, analyticsService, loc),
		Customers: controllers.NewCustomerController(customerService),
		Reports:   controllers.NewReportController(reportService, loc),
	}

	// --- HTTP router ---
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		apperrors.Respond(c, apperrors.ErrMethodNotAllowed)
	})
	r.Use(gin.Recovery())
	r.Use(commonmw.RequestID())
	r.Use(commonmw.RequestLogger(log))
	r.Use(commonmw.MetricsMiddleware(metricsClient, serviceName))
	r.Use(commonmw.SecurityHeaders())
	r.Use(commonmw.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(commonmw.RateLimitMiddleware(600, 60))
	r.Use(commonmw.Timeout(30 * time.Second))
	r.Use(apperrors.ErrorMiddleware())

	trackLimiter := commonmw.NewRateLimiter(rate.Every(time.Minute/time.Duration(cfg.TrackRateLimit)), cfg.TrackRateLimit/4+1, 5*time.Minute)
	routes.RegisterRoutes(r, ctl, verifier, trackLimiter)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "service": serviceName})
	})

	// --- Analytics queue worker ---
	var worker *services.TrackingWorker
	if trackQueue != nil {
		worker = services.NewTrackingWorker(trackQueue, trackingService, log)
		worker.Start(ctx)
	}

	// --- HTTP server ---
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("Firefly API started", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Initiating graceful shutdown...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}
	if worker != nil {
		worker.Stop()
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error("Redis close error", zap.Error(err))
		}
	}
	if err := database.Close(mongoClient); err != nil {
		log.Error("Database close error", zap.Error(err))
	}

	log.Info("Firefly API stopped gracefully")
}
