package cmd

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/vibast-solutions/ms-go-paygate/app/controller"
	"github.com/vibast-solutions/ms-go-paygate/app/metrics"
	"github.com/vibast-solutions/ms-go-paygate/app/provider"
	"github.com/vibast-solutions/ms-go-paygate/app/repository"
	"github.com/vibast-solutions/ms-go-paygate/app/service"
	"github.com/vibast-solutions/ms-go-paygate/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	authclient "github.com/vibast-solutions/lib-go-auth/client"
	authmiddleware "github.com/vibast-solutions/lib-go-auth/middleware"
	authlibservice "github.com/vibast-solutions/lib-go-auth/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the HTTP (Echo) server for PayHost checkouts, redirect callbacks, and metrics.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// services is the wired object graph shared by the server and the batch jobs.
type services struct {
	cfg     *config.Config
	payment *service.PaymentService
	batch   *service.BatchService
	lock    *repository.JobLock
	metrics *metrics.Metrics
}

func runServe(_ *cobra.Command, _ []string) {
	svc, cleanup := mustCreateServices()
	defer cleanup()

	authGRPCClient, err := authclient.NewGRPCClientFromAddr(context.Background(), svc.cfg.InternalEndpoints.AuthGRPCAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize auth gRPC client")
	}
	defer authGRPCClient.Close()

	internalAuthService := authlibservice.NewInternalAuthService(authGRPCClient)
	internalAuthMiddleware := authmiddleware.NewEchoInternalAuthMiddleware(internalAuthService)

	paygateController := controller.NewPaygateController(svc.payment)
	e := setupHTTPServer(paygateController, svc.metrics, internalAuthMiddleware.RequireInternalAccess(svc.cfg.App.ServiceName))

	go func() {
		httpAddr := net.JoinHostPort(svc.cfg.HTTP.Host, svc.cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}

	logrus.Info("Server stopped")
}

// setupHTTPServer guards checkout with checkoutAuth. The redirect route stays open since PayHost
// sends the payer's browser there.
func setupHTTPServer(
	paygateController *controller.PaygateController,
	m *metrics.Metrics,
	checkoutAuth echo.MiddlewareFunc,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"request_id": v.RequestID,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(ensureRequestID())

	e.GET("/health", paygateController.Health)
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	e.POST("/checkout/:order_id", paygateController.StartCheckout, checkoutAuth)

	// PayHost posts the payer's browser here; it carries no request id of its own.
	payhost := e.Group("/payhost")
	payhost.POST("/redirect", paygateController.HandleRedirect)
	payhost.GET("/redirect", paygateController.HandleRedirect)

	return e
}

func ensureRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
			if requestID == "" {
				requestID = uuid.NewString()
				ctx.Request().Header.Set(echo.HeaderXRequestID, requestID)
			}
			ctx.Response().Header().Set(echo.HeaderXRequestID, requestID)
			return next(ctx)
		}
	}
}

func mustCreateServices() (*services, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	orderRepo := repository.NewOrderRepository(db, cfg.Gateway.ShopBaseURL)
	noteRepo := repository.NewOrderNoteRepository(db)
	callbackRepo := repository.NewRedirectCallbackRepository(db)
	cartRepo := repository.NewCartRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	uploadRepo := repository.NewBatchUploadRepository(db)
	vaultService := service.NewVaultService(repository.NewVaultTokenRepository(db))

	payHostClient := provider.NewPayHostClient(provider.PayHostConfig{
		PayGateID:   cfg.PayHost.ID,
		Password:    cfg.PayHost.Key,
		APIURL:      cfg.PayHost.APIURL,
		HTTPTimeout: cfg.PayHost.HTTPTimeout,
	})
	payBatchClient := provider.NewPayBatchClient(provider.PayBatchConfig{
		PayBatchID:  cfg.PayBatch.ID,
		Password:    cfg.PayBatch.Key,
		APIURL:      cfg.PayBatch.APIURL,
		NotifyURL:   cfg.PayBatch.NotifyURL,
		HTTPTimeout: cfg.PayBatch.HTTPTimeout,
	})
	ratesClient := provider.NewExchangeRateClient(provider.RatesConfig{
		APIURL:             cfg.Rates.APIURL,
		SettlementCurrency: cfg.Rates.SettlementCurrency,
		AllowedCurrencies:  cfg.Rates.AllowedCurrencies,
		HTTPTimeout:        cfg.Rates.HTTPTimeout,
	})

	m := metrics.New(cfg.App.ServiceName)

	paymentService := service.NewPaymentService(
		orderRepo,
		noteRepo,
		callbackRepo,
		cartRepo,
		vaultService,
		payHostClient,
		cfg.Gateway,
		cfg.PayHost,
		m,
	)
	batchService := service.NewBatchService(
		orderRepo,
		noteRepo,
		subscriptionRepo,
		uploadRepo,
		vaultService,
		payBatchClient,
		ratesClient,
		cfg.Gateway,
		cfg.Jobs,
		cfg.PayBatch.QueryRatePerSecond,
		m,
	)

	cleanup := func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return &services{
		cfg:     cfg,
		payment: paymentService,
		batch:   batchService,
		lock:    repository.NewJobLock(db, cfg.Jobs.LockTimeout),
		metrics: m,
	}, cleanup
}
