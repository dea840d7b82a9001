package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/quantflow/backend/internal/audit"
	"github.com/quantflow/backend/internal/config"
	"github.com/quantflow/backend/internal/events"
	"github.com/quantflow/backend/internal/extidp"
	"github.com/quantflow/backend/internal/httpserver"
	"github.com/quantflow/backend/internal/identity"
	"github.com/quantflow/backend/internal/logging"
	"github.com/quantflow/backend/internal/middleware"
	"github.com/quantflow/backend/internal/models"
	"github.com/quantflow/backend/internal/service"
	"github.com/quantflow/backend/internal/store"
	"github.com/quantflow/backend/internal/tokens"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	config.MustNonEmptyBytes(cfg.JWTSecret, "JWT_SECRET")
	config.MustNonEmptyBytes(cfg.RefreshSecret, "JWT_REFRESH_SECRET")

	accessTTL, err := config.ParseLifetime(cfg.AccessLifetime)
	if err != nil {
		log.Fatalf("JWT_EXPIRE: %v", err)
	}
	refreshTTL, err := config.ParseLifetime(cfg.RefreshLifetime)
	if err != nil {
		log.Fatalf("JWT_REFRESH_EXPIRE: %v", err)
	}

	tokenSvc, err := tokens.NewService(cfg.JWTSecret, cfg.RefreshSecret, accessTTL, refreshTTL)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	// The durable store is preferred; the in-memory fallback keeps the
	// service answering through an outage, at the cost of persistence.
	fallback := store.NewMemory()
	var primary store.Store
	if cfg.DatabaseURL != "" {
		db, dbErr := openDB(cfg.DatabaseURL)
		if dbErr != nil {
			logger.Error("db_unavailable_using_fallback", "error", dbErr)
		} else {
			primary = store.NewGorm(db)
		}
	} else {
		logger.Warn("no_database_configured_using_fallback")
	}
	userStore, resolverStore := buildStores(primary, fallback)

	var verifier *extidp.Client
	if cfg.ExternalIDPURL != "" && cfg.ExternalIDPServiceKey != "" {
		verifier = extidp.NewClient(cfg.ExternalIDPURL, cfg.ExternalIDPServiceKey)
	}

	producer := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()

	recorder, err := audit.NewRecorder(cfg.ESURL, cfg.ESUser, cfg.ESPassword)
	if err != nil {
		logger.Error("audit_recorder_disabled", "error", err)
	}

	resolver := identity.NewResolver(tokenSvc, resolverStore, verifier)
	authSvc := &service.AuthService{
		Store:  userStore,
		Tokens: tokenSvc,
		Events: producer,
		Audit:  recorder,
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(echomw.Recover(), echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))

	httpserver.Register(e, &httpserver.Deps{
		Auth:    &httpserver.AuthHTTP{Svc: authSvc, AccessLifetime: cfg.AccessLifetime},
		Users:   &httpserver.UsersHTTP{Svc: authSvc},
		Trading: &httpserver.TradingHTTP{},
		Session: middleware.NewSessionAuth(resolver),
	})

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatalf("echo start: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo_shutdown", "error", err)
	}
}

// buildStores splits the two consumers of the credential store. The
// auth service gets the failover composite so logins keep working
// through a database outage. The resolver gets the primary directly:
// it must see ErrUnavailable so token resolution can degrade to the
// external provider's profile storage instead of silently landing
// records in the fallback map.
func buildStores(primary store.Store, fallback *store.Memory) (svcStore, resolverStore store.Store) {
	if primary == nil {
		return fallback, fallback
	}
	return store.NewFailover(primary, fallback), primary
}

func openDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt: true,
		NowFunc:     func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&models.User{}); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return db, sqlDB.PingContext(pingCtx)
}
