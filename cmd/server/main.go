package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"ground-truth-bench/internal/app"
	"ground-truth-bench/internal/auth"
	"ground-truth-bench/internal/config"
	apphttp "ground-truth-bench/internal/http"
	"ground-truth-bench/internal/service"
	"ground-truth-bench/internal/sharepoint"
)

const sweepInterval = time.Minute

func main() {
	cfg, err := config.Load()
	logger := app.NewLogger(cfg.Log.Level)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup storage: %v", err)
	}
	defer stores.Close()

	authenticator := auth.NewAuthenticator(auth.Config{
		Store:   stores.Credentials,
		Limiter: auth.NewRateLimiter(cfg.Auth.MaxAttempts, cfg.Auth.RateLimitWindow, nil),
		Logger:  logger,
	})
	guard := auth.NewSessionGuard(cfg.Auth.SessionTimeout, nil)
	sessions := apphttp.NewSessionTable()

	docCfg := service.DocumentServiceConfig{
		Objects: stores.Blobs,
		Prefix:  cfg.Storage.DocumentPrefix,
		Logger:  logger,
	}
	handlerCfg := apphttp.Config{
		Authenticator:  authenticator,
		Guard:          guard,
		Sessions:       sessions,
		Cookies:        apphttp.NewCookieCodec([]byte(cfg.Auth.CookieSecret), nil),
		SecureCookie:   cfg.Auth.SecureCookie,
		Questions:      service.NewQuestionService(stores.Questions, nil),
		Throttle:       apphttp.NewLoginThrottle(cfg.Auth.LoginRatePerMin, cfg.Auth.LoginBurst, nil),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	}
	if cfg.SharePointEnabled() {
		client := sharepoint.NewClient(sharepoint.Config{
			TenantID:     cfg.SharePoint.TenantID,
			ClientID:     cfg.SharePoint.ClientID,
			ClientSecret: cfg.SharePoint.ClientSecret,
			SiteHost:     cfg.SharePoint.SiteHost,
			SitePath:     cfg.SharePoint.SitePath,
		}, logger)
		docCfg.SharePoint = client
		handlerCfg.SharePoint = client
		logger.WithField("site", cfg.SharePoint.SiteHost+cfg.SharePoint.SitePath).Info("sharepoint enabled")
	} else {
		logger.Info("sharepoint not configured, documents use the object store only")
	}
	handlerCfg.Documents = service.NewDocumentService(docCfg)

	go sessions.RunSweeper(ctx, guard, sweepInterval, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	apphttp.NewHandler(handlerCfg).RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}
