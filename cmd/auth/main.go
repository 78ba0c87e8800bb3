package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Skotchmaster/lookaly/internal/config"
	"github.com/Skotchmaster/lookaly/internal/db"
	"github.com/Skotchmaster/lookaly/internal/domain"
	"github.com/Skotchmaster/lookaly/internal/events"
	"github.com/Skotchmaster/lookaly/internal/federation"
	"github.com/Skotchmaster/lookaly/internal/hash"
	"github.com/Skotchmaster/lookaly/internal/httpserver"
	"github.com/Skotchmaster/lookaly/internal/logging"
	"github.com/Skotchmaster/lookaly/internal/metrics"
	authmw "github.com/Skotchmaster/lookaly/internal/middleware/auth"
	"github.com/Skotchmaster/lookaly/internal/middleware/ratelimit"
	"github.com/Skotchmaster/lookaly/internal/repo"
	"github.com/Skotchmaster/lookaly/internal/revocation"
	"github.com/Skotchmaster/lookaly/internal/service"
	"github.com/Skotchmaster/lookaly/internal/session"
	"github.com/Skotchmaster/lookaly/internal/throttle"
	"github.com/Skotchmaster/lookaly/internal/tokens"
	"github.com/Skotchmaster/lookaly/internal/twofactor"
)

const janitorInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.LogLevel).With("app", cfg.AppName)

	bg, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	gdb, err := db.Open(initCtx, cfg.DBDriver, cfg.DatabaseURL)
	if err == nil {
		err = db.Migrate(initCtx, gdb)
	}
	cancel()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis url: %v", err)
		}
		rdb = redis.NewClient(opt)
	}

	issuer, err := tokens.NewIssuer(tokens.Options{
		Secret:     []byte(cfg.SecretKey),
		Algorithm:  cfg.Algorithm,
		AccessTTL:  cfg.AccessTTL(),
		RefreshTTL: cfg.RefreshTTL(),
	})
	if err != nil {
		log.Fatal(err)
	}
	hasher, err := hash.New(cfg.PasswordHashCost, cfg.HashConcurrency)
	if err != nil {
		log.Fatal(err)
	}
	roles, err := domain.NewRoleSet(cfg.Roles)
	if err != nil {
		log.Fatal(err)
	}

	accounts := &repo.GormRepo{DB: gdb}
	registry := newRegistry(bg, cfg, gdb, rdb, logger)
	sessions := session.NewAuthenticator(issuer, registry, accounts)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewProducer(cfg.KafkaBrokers, events.TopicUserEvents, logger)
	}

	svc := &service.AuthService{
		Accounts:  accounts,
		Hasher:    hasher,
		Issuer:    issuer,
		Registry:  registry,
		Sessions:  sessions,
		TwoFactor: twofactor.NewValidator(accounts, cfg.TOTPIssuer),
		Events:    publisher,
		Metrics:   m,
		Policy: service.PasswordPolicy{
			MinLength:  cfg.PasswordMinLength,
			MaxLength:  cfg.PasswordMaxLength,
			ExpireDays: cfg.PasswordExpireDays,
		},
		Roles: roles,
	}
	if cfg.FederationEnabled() {
		provider := federation.Google(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURI)
		client := &http.Client{Timeout: cfg.FederationTimeout}
		svc.Federation = federation.NewReconciler(provider, accounts, hasher, client, cfg.FederationTimeout)
	} else {
		logger.Info("federated login disabled", "reason", "GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET not set")
	}

	e := httpserver.New(logger)
	httpserver.Register(e, &httpserver.Deps{
		AuthHandler: &httpserver.AuthHTTP{
			Svc:         svc,
			Debug:       cfg.Debug,
			FrontendURL: cfg.FrontendURL,
		},
		Guard:         authmw.New(sessions),
		RegisterLimit: ratelimit.PerIP(newThrottle(bg, cfg, rdb, "register", cfg.RegisterRateLimit), "register", m),
		LoginLimit:    ratelimit.PerIP(newThrottle(bg, cfg, rdb, "login", cfg.LoginRateLimit), "login", m),
		Metrics:       promhttp.HandlerFor(promReg, promhttp.HandlerOpts{Registry: promReg}),
		Ready: func(ctx context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			if err := sqlDB.PingContext(ctx); err != nil {
				return err
			}
			if rdb != nil {
				return rdb.Ping(ctx).Err()
			}
			return nil
		},
	})

	go func() {
		logger.Info("auth service listening", "addr", cfg.Addr)
		if err := e.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("echo start: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("shutting down...")
	stopBackground()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("echo shutdown: %v", err)
	}
	if err := publisher.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
	}
	if err := db.Close(gdb); err != nil {
		log.Printf("db close error: %v", err)
	}
	log.Println("shutdown complete")
}

func newRegistry(ctx context.Context, cfg *config.Config, gdb *gorm.DB, rdb *redis.Client, logger *slog.Logger) revocation.Registry {
	switch cfg.RevocationBackend {
	case config.BackendRedis:
		return revocation.NewRedis(rdb)
	case config.BackendDatabase:
		d := revocation.NewDatabase(gdb)
		go d.Run(ctx, janitorInterval, func(err error) {
			logger.Warn("revocation purge failed", "error", err)
		})
		return d
	default:
		return revocation.NewMemory(janitorInterval)
	}
}

func newThrottle(ctx context.Context, cfg *config.Config, rdb *redis.Client, name string, rule throttle.Rule) throttle.Throttle {
	if cfg.ThrottleBackend == config.BackendRedis {
		return throttle.NewRedisLimiter(rdb, name, rule)
	}
	l := throttle.NewLimiter(rule)
	go l.Run(ctx, janitorInterval)
	return l
}
