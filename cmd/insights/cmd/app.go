package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"insights-backend/internal/cache"
	"insights-backend/internal/components/telemetry"
	"insights-backend/internal/credstore"
	"insights-backend/internal/db"
	"insights-backend/internal/enrichment"
	"insights-backend/internal/ingest"
	"insights-backend/internal/mirror"
	"insights-backend/internal/notify"
	"insights-backend/internal/scrapers/linkedin"
	"insights-backend/internal/session"
	"insights-backend/internal/store"

	"github.com/jmoiron/sqlx"
)

// app is every component wired from the configuration. Nothing in it touches the
// network until it is used.
type app struct {
	config   Config
	conn     *sqlx.DB
	store    *store.Store
	cache    cache.Cache
	creds    *credstore.FileStore
	scraper  *linkedin.Scraper
	sessions *session.Manager
	service  *ingest.Service
}

func notifier(config NotifyConfig) notify.Notifier {
	if len(config.Smtp.To) == 0 {
		return notify.Log{}
	}
	return notify.Multi{notify.Log{}, notify.NewEmail(config.Smtp)}
}

func openStore(config Config) (*sqlx.DB, *store.Store, error) {
	if config.Database.File != "" && config.Database.Url == "" {
		if dir := filepath.Dir(config.Database.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, err
			}
		}
	}
	conn, err := db.OpenAndMigrate(config.Database)
	if err != nil {
		return nil, nil, err
	}
	return conn, store.New(conn), nil
}

func openApp(ctx context.Context, config Config) (*app, error) {
	tel := telemetry.SlogAPI{}

	conn, st, err := openStore(config)
	if err != nil {
		return nil, err
	}
	a := &app{config: config, conn: conn, store: st}

	a.cache, err = cache.Open(config.Cache)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open cache: %w", err)
	}

	a.scraper, err = linkedin.New(config.Linkedin, linkedin.WithTelemetry(tel))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init scraper: %w", err)
	}
	a.creds = credstore.NewFileStore(config.Session.CookieFile)
	a.sessions = session.NewManager(
		a.scraper.Authenticator(),
		a.creds,
		config.Session.manager(),
		session.WithTelemetry(tel),
		session.WithNotifier(notifier(config.Notify)),
	)

	opts := []ingest.Option{
		ingest.WithTelemetry(tel),
		ingest.WithEnrichment(enrichment.Open(config.Enrichment, enrichment.WithTelemetry(tel))),
	}
	m, err := mirror.Open(config.Mirror, mirror.WithTelemetry(tel))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init mirror: %w", err)
	}
	if m != nil {
		opts = append(opts, ingest.WithMirror(m))
	}
	a.service = ingest.New(a.sessions, a.scraper, a.store, a.cache, config.Ingest.service(), opts...)

	slog.DebugContext(ctx, "initialized",
		"database", config.Database.File,
		"cache", config.Cache.Backend,
		"cookies", config.Session.CookieFile,
	)
	return a, nil
}

func (a *app) Close() {
	if a.sessions != nil {
		a.sessions.Close()
	}
	var errs []error
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.conn != nil {
		errs = append(errs, a.conn.Close())
	}
	if err := errors.Join(errs...); err != nil {
		slog.Warn("close", "err", err)
	}
}
