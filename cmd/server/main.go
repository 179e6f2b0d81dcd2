package main // Entry point package

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/campus-auth/internal/config"
	"github.com/iliyamo/campus-auth/internal/database"
	"github.com/iliyamo/campus-auth/internal/handler"
	"github.com/iliyamo/campus-auth/internal/metrics"
	"github.com/iliyamo/campus-auth/internal/middleware"
	"github.com/iliyamo/campus-auth/internal/queue"
	"github.com/iliyamo/campus-auth/internal/repository"
	"github.com/iliyamo/campus-auth/internal/router"
	"github.com/iliyamo/campus-auth/internal/service"
	"github.com/iliyamo/campus-auth/internal/utils"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win

	cfg := config.Load()
	log := newLogger(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func newLogger(env string) *slog.Logger {
	level := slog.LevelInfo
	if env == "dev" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		return err
	}
	defer rdb.Close()

	db, err := database.Open(cfg.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var events service.EventSink = service.NopEvents{}
	if cfg.AuthEventsEnabled {
		rabbit := service.NewRabbitEvents(cfg.RabbitURL, m, log)
		defer rabbit.Close()
		events = rabbit
	}
	if cfg.AuthAuditConsumer {
		go func() {
			if err := queue.StartAuditConsumer(ctx, cfg.RabbitURL, cfg.AuditLogPath, log); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit consumer stopped", "err", err)
			}
		}()
	}

	keys := repository.Keyspace{Prefix: cfg.StorePrefix}
	users := repository.NewUserRepo(db)
	issuer, err := service.NewTokenIssuer(service.TokenConfig{
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		Issuer:        cfg.JWTIssuer,
		Audience:      cfg.JWTAudience,
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
	}, repository.NewTokenRepo(rdb, keys), repository.NewBlacklistRepo(rdb, keys), log)
	if err != nil {
		return err
	}
	box, err := utils.NewSecretBox(cfg.EncryptionKey)
	if err != nil {
		return err
	}
	sessions := service.NewSessionStore(service.SessionConfig{
		MaxAge:           cfg.SessionMaxAge,
		IdleTTL:          cfg.SessionIdleTTL,
		LoginMaxFailures: cfg.Login.MaxFailures,
		LoginWindow:      cfg.Login.Window,
		LoginHistorySize: cfg.Login.HistorySize,
		LoginHistoryTTL:  cfg.Login.HistoryTTL,
	}, repository.NewSessionRepo(rdb, keys).WithSealer(box), repository.NewLoginAttemptRepo(rdb, keys), issuer, log)

	ip, err := ipExtractor(cfg.TrustedProxies)
	if err != nil {
		return err
	}
	rl := config.LoadRateLimitConfig()
	var defaultLimit *middleware.RateLimitPolicy
	if rl.Enabled {
		defaultLimit = &middleware.RateLimitPolicy{Window: rl.Window, Max: rl.Max}
	}
	gate := middleware.NewGate(middleware.GateConfig{
		DefaultRateLimit: defaultLimit,
		StoreTimeout:     cfg.RequestTimeout,
		IPExtractor:      ip,
	}, middleware.GateDeps{
		Tokens:   issuer,
		Sessions: sessions,
		Counter:  repository.NewRateCounter(rdb, keys),
		Logins:   sessions,
		Events:   events,
		Metrics:  m,
		Log:      log,
	})
	auth := handler.NewAuthHandler(cfg.BcryptCost, cfg.RequestTimeout, handler.AuthDeps{
		Users:    users,
		Tokens:   issuer,
		Sessions: sessions,
		Gate:     gate,
		Events:   events,
		Metrics:  m,
		Log:      log,
	})
	ready := handler.NewReadiness(2*time.Second, map[string]handler.PingFunc{
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		"mysql": users.Ping,
	})

	e := router.New(ip, log)
	router.RegisterRoutes(e, ready, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	var authLimit *middleware.RateLimitPolicy
	if rl.Enabled {
		authLimit = &middleware.RateLimitPolicy{Window: rl.Window, Max: rl.AuthMax}
	}
	router.RegisterAuth(e, auth, gate, authLimit)

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// ipExtractor trusts X-Forwarded-For only from the configured proxy ranges.
// Without any, the socket peer is the client.
func ipExtractor(trusted []string) (echo.IPExtractor, error) {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect(), nil
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, cidr := range trusted {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, err
		}
		opts = append(opts, echo.TrustIPRange(ipNet))
	}
	return echo.ExtractIPFromXFFHeader(opts...), nil
}
