package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"essence.app/internal/audit"
	"essence.app/internal/auth"
	"essence.app/internal/config"
	"essence.app/internal/httpapi"
	"essence.app/internal/identity"
	"essence.app/internal/obs"
	"essence.app/internal/session"
	"essence.app/internal/store/memory"
	"essence.app/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// stores is the storage backend the service runs on.
type stores interface {
	auth.ProfileStore
	auth.AdminStore
	audit.Store
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flags := pflag.NewFlagSet("essence-api", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", os.Getenv("ESSENCE_CONFIG"), "path to YAML config file")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Printf("essence-api %s (%s)\n", version, commit)
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	obs.SetLevel(cfg.Log.Level)
	obs.Init()
	obs.InitBuildInfo(version, commit)
	logger := obs.Component("main")

	provider, verifier, err := newIdentity(cfg.Identity)
	if err != nil {
		return err
	}

	var (
		store stores
		ready httpapi.ReadyProbe
	)
	switch cfg.Store.Backend {
	case config.StoreMemory:
		var opts []memory.Option
		if local, ok := provider.(*identity.Local); ok {
			opts = append(opts, memory.WithIdentitySource(local.ListUsers))
		}
		store = memory.New(opts...)
	default:
		pgStore, err := pg.Open(cfg.Store.DSN)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer pgStore.Close()
		store = pgStore
		ready.DB = pgStore.DB()
	}

	var sessionStore session.Store = session.NewMemoryStore()
	if cfg.Session.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Session.RedisAddr,
			Password: cfg.Session.RedisPassword,
			DB:       cfg.Session.RedisDB,
		})
		defer rdb.Close()
		sessionStore = session.NewRedisStore(rdb)
	}

	accessorOpts := []session.Option{
		session.WithCookieOptions(session.CookieOptions{Secure: cfg.Session.CookieSecure}),
	}
	if verifier != nil {
		accessorOpts = append(accessorOpts, session.WithVerifier(verifier))
	}
	sessions, err := session.NewAccessor(sessionStore, provider, cfg.Session.TTL, accessorOpts...)
	if err != nil {
		return err
	}

	profiles, err := auth.NewProfileManager(store, provider)
	if err != nil {
		return err
	}
	recorder, err := audit.NewRecorder(store)
	if err != nil {
		return err
	}
	admin, err := auth.NewAdminService(store, profiles, recorder)
	if err != nil {
		return err
	}
	gate, err := auth.NewGate(sessions, profiles)
	if err != nil {
		return err
	}

	api, err := httpapi.New(httpapi.Deps{
		Sessions: sessions,
		Identity: provider,
		Gate:     gate,
		Profiles: profiles,
		Admin:    admin,
		Audit:    recorder,
		Ready:    ready,
	}, httpapi.Options{
		Version:        version,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		RateBurst:      cfg.HTTP.RateBurst,
		RatePerSec:     cfg.HTTP.RatePerSec,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info().
			Str("version", version).
			Str("addr", srv.Addr).
			Str("identity", cfg.Identity.Backend).
			Str("store", cfg.Store.Backend).
			Msg("starting essence-api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info().Msg("stopped")
	return nil
}

// newIdentity builds the configured provider and, when a JWT secret is
// known, a verifier that checks access tokens without a provider call.
func newIdentity(cfg config.Identity) (identity.Provider, *identity.Verifier, error) {
	if cfg.Backend == config.IdentityLocal {
		local, err := identity.NewLocal(cfg.JWTSecret)
		if err != nil {
			return nil, nil, err
		}
		return local, local.Verifier(), nil
	}
	client, err := identity.NewClient(cfg.URL, cfg.AnonKey, cfg.ServiceRoleKey, identity.WithTimeout(cfg.OutboundTimeout))
	if err != nil {
		return nil, nil, err
	}
	if cfg.JWTSecret == "" {
		return client, nil, nil
	}
	verifier, err := identity.NewVerifier(cfg.JWTSecret, "")
	if err != nil {
		return nil, nil, err
	}
	return client, verifier, nil
}
