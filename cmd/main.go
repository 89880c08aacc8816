package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cafehub/internal/api"
	"cafehub/internal/bookings"
	"cafehub/internal/config"
	"cafehub/internal/database"
	"cafehub/internal/inventory"
	"cafehub/internal/lock"
	"cafehub/internal/logging"
	"cafehub/internal/menu"
	"cafehub/internal/models"
	"cafehub/internal/monitoring"
	"cafehub/internal/notify"
	"cafehub/internal/orders"
	"cafehub/internal/tables"
)

var (
	port        = flag.Int("port", 0, "API server port (overrides config)")
	metricsPort = flag.Int("metrics-port", 0, "Metrics server port (overrides config)")
	configFile  = flag.String("config", "configs/config.yaml", "Path to configuration file")
	seed        = flag.Bool("seed", false, "Insert demo users, tables, ingredients and menu items when empty")
	issueToken  = flag.Uint("issue-token", 0, "Print a 24h token for the given user id and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *metricsPort > 0 {
		cfg.Metrics.Port = *metricsPort
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}
	if *seed {
		if err := database.Seed(db); err != nil {
			logger.Fatal("failed to seed database", zap.Error(err))
		}
		logger.Info("demo data seeded")
	}

	if *issueToken != 0 {
		var user models.User
		if err := db.First(&user, *issueToken).Error; err != nil {
			logger.Fatal("unknown user", zap.Uint("user_id", *issueToken), zap.Error(err))
		}
		token, err := api.IssueToken([]byte(cfg.Auth.JWTSecret), user, 24*time.Hour)
		if err != nil {
			logger.Fatal("failed to issue token", zap.Error(err))
		}
		fmt.Println(token)
		return
	}

	metrics := monitoring.NewCollector()

	// Notification pipeline
	store := notify.NewStore(db)
	hub := notify.NewHub(logger)
	sinks := []notify.Sink{store, hub}
	if cfg.RabbitMQ.Enabled {
		broker, err := notify.DialBroker(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			logger.Fatal("failed to connect to rabbitmq", zap.Error(err))
		}
		defer broker.Close()
		sinks = append(sinks, notify.NewAMQPSink(broker.Channel, cfg.RabbitMQ.Exchange, logger))
		logger.Info("rabbitmq notifications enabled", zap.String("exchange", cfg.RabbitMQ.Exchange))
	}
	dispatcher := notify.NewDispatcher(notify.NewDirectory(db), logger, metrics, cfg.Notifications.Buffer, sinks...)

	// Services share one lock table so orders, bookings and stock movements
	// serialize on the same table and ingredient keys.
	locks := lock.NewKeyed()
	stock := inventory.NewService(db, locks, dispatcher, metrics, logger)
	cafe := api.NewCafeAPI(api.Services{
		Inventory:     stock,
		Menu:          menu.NewService(db, logger),
		Tables:        tables.NewService(db, locks, logger),
		Orders:        orders.NewService(db, locks, stock, dispatcher, metrics, logger),
		Bookings:      bookings.NewService(db, locks, dispatcher, metrics, logger),
		Notifications: store,
		Hub:           hub,
		Metrics:       metrics,
	}, []byte(cfg.Auth.JWTSecret), logger)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = startMetricsServer(cfg.Metrics, metrics, logger)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: cafe.Router,
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down servers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("API server shutdown error", zap.Error(err))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown error", zap.Error(err))
			}
		}
	}()

	logger.Info("starting API server", zap.Int("port", cfg.Server.Port))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("API server error", zap.Error(err))
	}
	<-done

	// Drain pending notifications before the database closes.
	dispatcher.Close()
	hub.Close()
	logger.Info("shutdown complete")
}

func startMetricsServer(cfg config.MetricsConfig, metrics *monitoring.Collector, logger *zap.Logger) *http.Server {
	metricsRouter := gin.New()
	metricsRouter.GET(cfg.Path, gin.WrapH(metrics.Handler()))

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: metricsRouter,
	}

	go func() {
		logger.Info("starting metrics server", zap.Int("port", cfg.Port), zap.String("path", cfg.Path))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return metricsServer
}
