// Package app wires the guildgate runtime: config, logging, stores, the
// sweep scheduler, the moderation feed and the HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"guildgate/cmd/internal/discord"
	"guildgate/cmd/internal/feed"
	"guildgate/cmd/internal/gateapi"
	"guildgate/cmd/internal/guild"
	"guildgate/cmd/internal/metrics"
	"guildgate/cmd/internal/migrations"
	"guildgate/cmd/internal/oauthstate"
	"guildgate/cmd/internal/sweep"
	"guildgate/cmd/security/secret"
	"guildgate/cmd/security/token"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

type dbStore struct {
	pool *pgxpool.Pool
}

func (s dbStore) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// stores bundles the persistence backends selected at startup.
type stores struct {
	lifecycle Store
	guilds    guild.Store
	states    oauthstate.Store
	pool      *pgxpool.Pool
	dbEnabled bool
}

// App is the guildgate runtime: it owns the HTTP server, the sweep
// scheduler and the store lifecycle.
type App struct {
	cfg Config
	log Logger

	st stores

	metrics *metrics.Collectors
	gate    *gateapi.Handler
	feed    *feed.Gateway
	sched   *sweep.Scheduler
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	st, err := newStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*App, error) {
		_ = st.lifecycle.Close(context.Background())
		return nil, err
	}

	var mc *metrics.Collectors
	if cfg.MetricsEnabled {
		mc = metrics.New()
	}

	var hub *feed.Hub
	var guildOpts []guild.Option
	var stateOpts []oauthstate.Option
	var discordOpts []discord.Option
	if mc != nil {
		guildOpts = append(guildOpts, guild.WithMetrics(mc))
		stateOpts = append(stateOpts, oauthstate.WithMetrics(mc))
		discordOpts = append(discordOpts, discord.WithMetrics(mc))
	}
	if cfg.FeedEnabled {
		if mc != nil {
			hub = feed.NewHub(log, mc)
		} else {
			hub = feed.NewHub(log, nil)
		}
		guildOpts = append(guildOpts, guild.WithObserver(hub))
	}

	engine, err := guild.NewEngine(st.guilds, guildOpts...)
	if err != nil {
		return fail(fmt.Errorf("admission engine: %w", err))
	}
	ledger, err := guild.NewLedger(st.guilds, guildOpts...)
	if err != nil {
		return fail(fmt.Errorf("ledger: %w", err))
	}

	hasher, err := token.NewHasher(cfg.TokenHMACKey, cfg.RequireTokenHMAC)
	if err != nil {
		return fail(err)
	}
	stateOpts = append(stateOpts, oauthstate.WithTTL(cfg.StateTTL), oauthstate.WithHasher(hasher))
	states, err := oauthstate.NewManager(st.states, stateOpts...)
	if err != nil {
		return fail(fmt.Errorf("state manager: %w", err))
	}

	oauth, err := discord.NewClient(cfg.discordConfig(), discordOpts...)
	if err != nil {
		return fail(fmt.Errorf("discord client: %w", err))
	}

	admin, err := secret.NewVerifier(cfg.APIToken)
	if err != nil {
		return fail(fmt.Errorf("admin secret: %w", err))
	}

	gate, err := gateapi.NewHandler(log, cfg.gateConfig(), gateapi.Deps{
		Engine: engine,
		Ledger: ledger,
		States: states,
		OAuth:  oauth,
		Admin:  admin,
	})
	if err != nil {
		return fail(err)
	}

	var feedGW *feed.Gateway
	if hub != nil {
		feedGW = feed.NewGateway(log, hub, cfg.feedConfig())
	}

	sched := sweep.New(log)
	if err := sched.Add("states", cfg.StateSweepInterval, states.Sweep); err != nil {
		return fail(fmt.Errorf("sweep states: %w", err))
	}
	if err := sched.Add("blacklist", cfg.BlacklistSweepInterval, ledger.SweepExpired); err != nil {
		return fail(fmt.Errorf("sweep blacklist: %w", err))
	}

	log.Info("app.wired",
		"db_enabled", st.dbEnabled,
		"metrics_enabled", mc != nil,
		"feed_enabled", feedGW != nil,
		"state_hmac", hasher.HMAC(),
		"admin_secret_hashed", admin.Hashed(),
	)

	return &App{
		cfg:     cfg,
		log:     log,
		st:      st,
		metrics: mc,
		gate:    gate,
		feed:    feedGW,
		sched:   sched,
	}, nil
}

// Run starts the HTTP server and the sweeps, and blocks until context
// cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.st.pool, a.st.dbEnabled, a.gate, a.feed, a.metrics)

	var obs HTTPObserver
	if a.metrics != nil {
		obs = a.metrics
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(WithSecurityHeaders(mux), a.log, obs),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	if err := a.sched.Start(); err != nil {
		return err
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"base_url", runtimeBaseURL(a.cfg.HTTPAddr),
		"feed_url", feedURL(a.cfg.HTTPAddr, a.feed != nil),
		"db_enabled", a.st.dbEnabled,
		"sweeps", a.sched.Jobs(),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		runErr = errors.Join(runErr, err)
	}

	if err := a.sched.Stop(shutdownCtx); err != nil {
		a.log.Error("sweep.stop.fail", "err", err)
	}

	// Close store resources (pool etc).
	if err := a.st.lifecycle.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return runErr
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

// newStores decides between Postgres-backed persistence and in-memory dev stores.
func newStores(ctx context.Context, cfg Config, log Logger) (stores, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("db.disabled.inmemory_store", "note", "ledger and state keys are lost on restart")
		return stores{
			lifecycle: nopStore{},
			guilds:    guild.NewInMemoryStore(),
			states:    oauthstate.NewInMemoryStore(),
		}, nil
	}

	if cfg.DBAutoMigrate {
		if err := migrations.Up(ctx, cfg.DatabaseURL, cfg.DBSchema); err != nil {
			return stores{}, err
		}
		log.Info("db.migrations.applied", "schema", cfg.DBSchema)
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return stores{}, err
	}

	log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)

	// Ownership model: the app owns the pool lifecycle; stores only borrow it.
	guilds, err := guild.NewPostgresStore(pool, guild.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return stores{}, err
	}
	states, err := oauthstate.NewPostgresStore(pool, oauthstate.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return stores{}, err
	}

	return stores{
		lifecycle: dbStore{pool: pool},
		guilds:    guilds,
		states:    states,
		pool:      pool,
		dbEnabled: true,
	}, nil
}

// runtimeBaseURL turns a listen address into a URL a local operator can open.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://" + strings.TrimSpace(addr)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// feedURL is where an operator points a moderation feed client, or "" when
// the feed is disabled.
func feedURL(addr string, enabled bool) string {
	if !enabled {
		return ""
	}
	return "ws://" + strings.TrimPrefix(runtimeBaseURL(addr), "http://") + moderationFeedPath
}
