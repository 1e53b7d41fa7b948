package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ledgerline/backend/internal/audit"
	auditrepo "ledgerline/backend/internal/audit/repository"
	"ledgerline/backend/internal/boundary"
	"ledgerline/backend/internal/config"
	"ledgerline/backend/internal/db"
	"ledgerline/backend/internal/guardrail"
	"ledgerline/backend/internal/kms"
	"ledgerline/backend/internal/logging"
	"ledgerline/backend/internal/rbac"
	rbacrepo "ledgerline/backend/internal/rbac/repository"
	"ledgerline/backend/internal/registry"
	"ledgerline/backend/internal/security"
	"ledgerline/backend/internal/server"
	sessionrepo "ledgerline/backend/internal/session/repository"
	sessionservice "ledgerline/backend/internal/session/service"
	userrepo "ledgerline/backend/internal/user/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// Route classification is validated before anything listens: a coverage
	// gap on a sensitive resource is a refusal to boot, not a warning.
	fieldReg := registry.NewFieldRegistry()
	routeReg := registry.NewRouteRegistry(registry.DefaultRoutes())
	if err := routeReg.ValidateCoverage(fieldReg); err != nil {
		logger.Fatal("route classification incomplete", zap.Error(err))
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer conn.Close()

	var provider kms.Provider
	if cfg.KMSKeyARN != "" {
		provider, err = kms.NewAWSProvider(context.Background(), cfg.KMSKeyARN)
	} else {
		provider, err = kms.NewLocalProvider(cfg.MasterKey)
	}
	if err != nil {
		logger.Fatal("kms provider", zap.Error(err))
	}
	keys := kms.NewManager(provider, kms.NewPostgresKeyStore(conn), cfg.KeyTTL())

	tokens := security.NewTokenProvider([]byte(cfg.JWTSigningKey), cfg.JWTIssuer, cfg.JWTAudience, cfg.TokenTTL())
	hasher := security.NewHasher(cfg.BcryptCost)

	users := userrepo.NewPostgresRepository(conn)
	sessions := sessionrepo.NewPostgresRepository(conn)
	perms := rbacrepo.NewPostgresRepository(conn)
	auditLog := audit.NewLogger(auditrepo.NewPostgresRepository(conn), logger)

	sessionSvc := sessionservice.New(sessions, users, hasher, sessionservice.Policy{
		IdleWindow:       cfg.IdleWindow(),
		AbsoluteWindow:   cfg.AbsoluteWindow(),
		PrivilegedWindow: cfg.PrivilegedTTL(),
		LockoutThreshold: cfg.LockoutThreshold,
		LockoutDuration:  cfg.LockoutTTL(),
	}, logger)
	engine := rbac.NewEngine(perms, users)

	checked := guardrail.New(conn, fieldReg, logger)
	boundarySvc := boundary.NewService(engine, fieldReg, keys, auditLog,
		boundary.NewPostgresRecordStore(checked), cfg.ExportJustificationMin, logger)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := server.NewRouter(server.Deps{
		Log:      logger,
		Tokens:   tokens,
		Sessions: sessionSvc,
		Routes:   routeReg,
		Auth:     server.NewAuthHandler(sessionSvc, perms, tokens, auditLog, logger),
		Session:  server.NewSessionHandler(sessionSvc, engine, auditLog, logger),
		Audit:    server.NewAuditHandler(auditLog, engine, logger),
		Records:  server.NewRecordsHandler(boundarySvc, logger),
		DB:       conn,
	})

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				sessionSvc.Housekeep(sweepCtx)
			}
		}
	}()

	srv := server.New(cfg.HTTPAddr, router)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.Start(); err != nil {
			logger.Fatal("serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("http server stopped")
}
