package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/labstack/echo/v4"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"tenantgate/internal/api"
	"tenantgate/internal/auth"
	"tenantgate/internal/config"
	"tenantgate/internal/domains"
	"tenantgate/internal/entitlement"
	"tenantgate/internal/events"
	"tenantgate/internal/ledger"
	"tenantgate/internal/logging"
	"tenantgate/internal/mcp"
	"tenantgate/internal/repository"
	"tenantgate/internal/services"
	"tenantgate/internal/session"
	"tenantgate/internal/theme"
	"tenantgate/internal/tls"
)

func serveCmd() *cobra.Command {
	var inMemory bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, MCP tools and domain verification poller",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return serve(cmd.Context(), cfg, logger, inMemory)
		},
	}
	cmd.Flags().BoolVar(&inMemory, "memory", false, "Keep all state in process instead of Postgres, Redis and NATS")
	return cmd
}

// stack is everything serve wires together.
type stack struct {
	store   repository.Repository
	costs   ledger.Store
	prefs   session.PreferenceStore
	events  events.Publisher
	nc      *nats.Conn
	closers []func()
}

func (s *stack) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *logging.Logger, inMemory bool) error {
	logger.Info("Configuration loaded",
		"environment", cfg.Environment,
		"okta_domain", cfg.Auth.OktaDomain,
		"okta_client_id", cfg.Auth.ClientID,
		"swagger_client_id", cfg.Auth.SwaggerClientID,
		"in_memory", inMemory,
	)
	if cfg.Auth.SwaggerClientID != "" && cfg.Auth.SwaggerClientID == cfg.Auth.ClientID {
		logger.Warn("Swagger client ID matches the backend client ID; PKCE login from /docs will fail if the backend app requires a secret")
	}

	st, err := buildStack(ctx, cfg, logger, inMemory)
	if err != nil {
		return err
	}
	defer st.close()

	catalog, err := entitlement.LoadCatalog(cfg.Navigation.CatalogFile)
	if err != nil {
		return fmt.Errorf("navigation catalog: %w", err)
	}
	ents, err := entitlement.NewCachedResolver(entitlement.NewResolver(catalog, logger), cfg.Entitlements.CacheSize)
	if err != nil {
		return fmt.Errorf("entitlement cache: %w", err)
	}
	themes := theme.NewResolver(theme.Platform{
		Name:         cfg.Platform.Name,
		Tagline:      cfg.Platform.Tagline,
		SupportEmail: cfg.Platform.SupportEmail,
	})
	sessions := session.NewManager(st.store, st.prefs, ents, themes, logger)

	// Every change, local or from another instance, refreshes live sessions.
	invalidate := services.SessionInvalidator(sessions)
	subCtx, stopSub := context.WithCancel(ctx)
	defer stopSub()
	if st.nc != nil {
		sub := events.NewNATSSubscriber(st.nc, invalidate, logger)
		go func() {
			if err := sub.Start(subCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("NATS subscriber stopped", "error", err)
			}
		}()
	} else if local, ok := st.events.(*events.Local); ok {
		local.Subscribe(invalidate)
	}

	doms := domains.NewService(st.store, domains.NewNetResolver(net.DefaultResolver), certificateAuthority(cfg), domains.Config{
		CNAMETarget: cfg.Domains.CNAMETarget,
		TokenPrefix: cfg.Domains.TokenPrefix,
		MaxAttempts: cfg.Domains.MaxAttempts,
	}, logger)
	poller := domains.NewPoller(doms, domains.PollerConfig{
		Interval:    cfg.Domains.PollInterval,
		MaxWait:     cfg.Domains.MaxWait,
		CertRetries: cfg.Domains.CertRetries,
	}, logger)
	defer poller.Stop()

	prices, err := ledger.PricesFromConfig(cfg.Ledger.Prices)
	if err != nil {
		return fmt.Errorf("ledger prices: %w", err)
	}
	led := ledger.New(st.costs, prices, cfg.Platform.OwnerUserID, logger)

	tenants := services.NewTenantService(st.store, st.events, logger)
	tenants.OnDisable = poller.CancelTenant
	access := services.NewAccessService(sessions, doms, st.store, themes)

	authz, err := auth.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("auth initialization failed: %w", err)
	}
	authz.OnLogout = access.EndSession
	if authz.Bypass() {
		logger.Warn("Authentication bypass is active; every request runs as dev-user")
	}

	srv := api.NewServer(api.Deps{
		Access:  access,
		Tenants: tenants,
		Domains: doms,
		Watcher: poller,
		Ledger:  led,
		Store:   st.store,
		Logger:  logger,
		Service: cfg.Server.Name,
		Version: cfg.Server.Version,

		DemoMode: cfg.DemoModeEnabled(),
	})
	e := api.NewRouter(srv, echo.WrapMiddleware(authz.RequireAuth))

	e.GET("/login", echo.WrapHandler(http.HandlerFunc(authz.LoginHandler)))
	e.GET("/auth/callback", echo.WrapHandler(http.HandlerFunc(authz.CallbackHandler)))
	e.GET("/logout", echo.WrapHandler(http.HandlerFunc(authz.LogoutHandler)))
	api.RegisterDocs(e, cfg.Auth.OktaDomain, cfg.Auth.SwaggerClientID)

	mcpServer := mcp.NewServer(cfg.Server.Name, cfg.Server.Version, access, doms, led)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	mcpHandler := echo.WrapHandler(authz.RequireAuth(mcpHandlers))
	e.Any("/mcp", mcpHandler)
	e.Any("/mcp/*", mcpHandler)

	logger.Info("Handlers mounted", "api", "/api/v1", "mcp", "/mcp", "docs", "/docs")

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", server.Addr, "tls", cfg.TLS.Enable)
		if !cfg.TLS.Enable {
			serverErrors <- server.ListenAndServe()
			return
		}
		if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
			serverErrors <- errors.New("TLS enabled but cert/key file not provided")
			return
		}
		if _, err := os.Stat(cfg.TLS.CertFile); os.IsNotExist(err) && len(cfg.TLS.Hostnames) > 0 {
			if err := tls.GenerateSelfSignedCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames); err != nil {
				logger.Error("Failed to generate self-signed cert", "error", err)
			}
		}
		serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}
		logger.Info("Server stopped gracefully")
	}
	return nil
}

// buildStack connects the stores and the event bus. In memory mode, or when
// Redis or NATS are not configured, the in-process equivalents are used.
func buildStack(ctx context.Context, cfg *config.Config, logger *logging.Logger, inMemory bool) (*stack, error) {
	st := &stack{}

	if inMemory {
		st.store = repository.NewMemoryStore()
		st.costs = ledger.NewMemoryStore()
	} else {
		pool, err := initDatabase(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("database initialization failed: %w", err)
		}
		st.closers = append(st.closers, pool.Close)
		if err := repository.Migrate(ctx, pool); err != nil {
			st.close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		st.store = repository.NewPostgresStore(pool)

		db := stdlib.OpenDBFromPool(pool)
		st.closers = append(st.closers, func() { _ = db.Close() })
		st.costs = ledger.NewSQLStore(db)
		logger.Info("Database connected", "host", cfg.DB.Host, "db", cfg.DB.Name)
	}

	if inMemory || cfg.Redis.Addr == "" {
		st.prefs = session.NewMemoryPreferenceStore()
	} else {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			st.close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		st.closers = append(st.closers, func() { _ = rdb.Close() })
		st.prefs = session.NewRedisPreferenceStore(rdb, cfg.Session.PreferenceTTL)
		logger.Info("Redis connected", "addr", cfg.Redis.Addr)
	}

	if inMemory || cfg.NATS.URL == "" {
		st.events = events.NewLocal()
		return st, nil
	}
	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name(cfg.Server.Name),
		nats.MaxReconnects(cfg.NATS.MaxReconnects),
	)
	if err != nil {
		st.close()
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	st.closers = append(st.closers, nc.Close)
	st.nc = nc
	st.events = events.NewNATSPublisher(nc)
	logger.Info("NATS connected", "url", cfg.NATS.URL)
	return st, nil
}

func certificateAuthority(cfg *config.Config) domains.CertificateAuthority {
	if cfg.Certificates.Provider == "http" && cfg.Certificates.URL != "" {
		return services.NewHTTPCertificateAuthority(cfg.Certificates.URL, cfg.Certificates.APIKey, cfg.Certificates.Timeout, cfg.Domains.CertRetries)
	}
	return tls.NewSelfSignedIssuer(cfg.Certificates.CertDir, 0)
}
