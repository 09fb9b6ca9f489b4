// Package app wires the parley server runtime: config, logging, the chat
// store, the notification fanout, and the HTTP surface.
//
// It is intentionally small and deterministic: every dependency is
// constructed once here and passed into the components that use it, so tests
// can substitute doubles at the same seams.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"parley/cmd/internal/chat"
	"parley/cmd/internal/notify"
	"parley/cmd/internal/session"

	"github.com/jackc/pgx/v5/pgxpool"
)

// App is the parley server runtime: it owns HTTP wiring and the lifecycle of
// the store pool and fanout transport.
type App struct {
	cfg Config
	log Logger

	store     chat.Store
	dbPool    *pgxpool.Pool
	dbEnabled bool

	transport notify.Transport
	fanout    *notify.Fanout

	chat *chat.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	store, dbPool, dbEnabled, err := newStore(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	transport, err := newTransport(cfg, log)
	if err != nil {
		closeStore(store, dbPool)
		return nil, err
	}
	fanout := notify.NewFanout(log, transport, notify.WithPublishTimeout(cfg.PublishTimeout))

	verifier, err := newVerifier(cfg, log)
	if err != nil {
		closeStore(store, dbPool)
		_ = transport.Close()
		return nil, err
	}

	chatHandler, err := chat.NewHandler(log, store, verifier, fanout,
		chat.WithMaxBodyBytes(cfg.MaxBodyBytes))
	if err != nil {
		closeStore(store, dbPool)
		_ = transport.Close()
		return nil, err
	}

	return &App{
		cfg:       cfg,
		log:       log,
		store:     store,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		transport: transport,
		fanout:    fanout,
		chat:      chatHandler,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.chat)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(WithSecurityHeaders(mux), a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	// Drain in-flight notifications before tearing down the transport.
	a.fanout.Wait()
	if err := a.transport.Close(); err != nil {
		a.log.Error("notify.transport.close.fail", "err", err)
	}

	closeStore(a.store, a.dbPool)

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newStore decides between Postgres-backed persistence and the in-memory dev
// store.
func newStore(ctx context.Context, cfg Config, log Logger) (chat.Store, *pgxpool.Pool, bool, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		store := chat.NewMemoryStore()
		seedDevUsers(ctx, store, cfg, log)
		return store, nil, false, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, false, err
	}

	log.Info("db.enabled.postgres_store")

	// Ownership model:
	// - app owns pool lifecycle
	// - PostgresStore.Close() is a no-op
	store, err := chat.NewPostgresStore(pool, chat.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, nil, false, err
	}
	return store, pool, true, nil
}

func closeStore(store chat.Store, pool *pgxpool.Pool) {
	if store != nil {
		_ = store.Close()
	}
	if pool != nil {
		pool.Close()
	}
}

// newTransport builds the fanout transport: Redis when configured, otherwise
// an in-process recorder for dev.
func newTransport(cfg Config, log Logger) (notify.Transport, error) {
	if cfg.RedisURL == "" {
		log.Info("notify.disabled.inmemory_transport")
		return notify.NewMemoryTransport(), nil
	}
	t, err := notify.NewRedisTransport(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	log.Info("notify.enabled.redis_transport")
	return t, nil
}

// newVerifier builds the access-token verifier for the external identity
// service. With no public key configured, dev static tokens may be used; with
// neither, every request is unauthenticated.
func newVerifier(cfg Config, log Logger) (session.TokenVerifier, error) {
	if cfg.TokenPublicKeyHex != "" {
		return session.NewPasetoV4PublicVerifier(session.Config{
			Issuer:       cfg.TokenIssuer,
			PublicKeyHex: cfg.TokenPublicKeyHex,
			ClockSkew:    cfg.TokenClockSkew,
		})
	}
	if len(cfg.DevStaticTokens) > 0 {
		log.Warn("auth.dev_static_tokens", "tokens", len(cfg.DevStaticTokens))
		return session.NewStaticVerifier(cfg.DevStaticTokens), nil
	}
	log.Warn("auth.no_verifier_configured")
	return session.NewStaticVerifier(nil), nil
}

// seedDevUsers provisions placeholder user rows for dev static tokens so the
// in-memory store can resolve them. User provisioning is otherwise external.
func seedDevUsers(ctx context.Context, store *chat.MemoryStore, cfg Config, log Logger) {
	now := time.Now().UTC()
	for _, uid := range cfg.DevStaticTokens {
		err := store.PutUser(ctx, chat.User{
			ID:          uid,
			DisplayName: uid,
			Email:       fmt.Sprintf("%s@dev.invalid", uid),
			CreatedAt:   now,
		})
		if err != nil {
			log.Warn("db.dev_seed.fail", "user_id", uid, "err", err)
			continue
		}
		log.Info("db.dev_seed.user", "user_id", uid)
	}
}
