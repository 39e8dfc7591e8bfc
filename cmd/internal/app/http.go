package app

import (
	"net/http"
	"time"

	"guildgate/cmd/internal/feed"
	"guildgate/cmd/internal/gateapi"
	"guildgate/cmd/internal/metrics"

	"github.com/jackc/pgx/v5/pgxpool"
)

const moderationFeedPath = "/ws/moderation"

func registerHTTP(
	mux *http.ServeMux,
	log Logger,
	cfg Config,
	dbPool *pgxpool.Pool,
	dbEnabled bool,
	gate *gateapi.Handler,
	feedGW *feed.Gateway,
	mc *metrics.Collectors,
) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ReadinessRequireDB && !dbEnabled {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if dbEnabled && dbPool != nil {
			if err := PingDB(r.Context(), dbPool, cfg.DBSchema, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if mc != nil {
		mux.Handle("GET /metrics", mc.Handler())
	}

	if feedGW != nil {
		mux.Handle("GET "+moderationFeedPath, gate.RequireAdmin(feedGW))
	}

	gate.Register(mux)
}
