package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"toonbot/internal/alert"
	"toonbot/internal/bot"
	"toonbot/internal/config"
	"toonbot/internal/dispatch"
	"toonbot/internal/metrics"
	"toonbot/internal/model"
	"toonbot/internal/registry"
	"toonbot/internal/scheduler"
	"toonbot/internal/source"
	"toonbot/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := newLogger("info")
		l.Fatal().Err(err).Msg("load config")
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Fatal().Err(err).Str("path", dir).Msg("create data directory")
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("open database")
	}
	defer func() { _ = store.Close() }()

	if err := run(cfg, store, log); err != nil {
		log.Error().Err(err).Msg("bot stopped with error")
		_ = store.Close()
		os.Exit(1)
	}
	log.Info().Msg("bot stopped")
}

func run(cfg *config.Config, store *storage.SQLite, log zerolog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	collector := metrics.NewMetricsCollector()
	reg := registry.New(store, log.With().Str("component", "registry").Logger())

	client := &http.Client{Timeout: 30 * time.Second}
	scoreboard := source.NewScoreboard(client, cfg.ScoreboardURL, source.NewLimiter(cfg.BrowserLimit), reg.Categories,
		log.With().Str("component", "scoreboard").Logger())
	feeds := source.NewFeeds(client, reg.Feeds, log.With().Str("component", "feeds").Logger())

	b, err := bot.New(cfg.DiscordToken, cfg.GuildID, reg, feeds, log.With().Str("component", "bot").Logger())
	if err != nil {
		return err
	}

	d := dispatch.New(reg, b, log.With().Str("component", "dispatch").Logger(),
		dispatch.WithRateLimit(rate.NewLimiter(rate.Every(100*time.Millisecond), 5)),
		dispatch.WithMetrics(collector),
	)
	refiner := dispatch.NewRefiner(d, dispatch.DefaultRefineConfig, log.With().Str("component", "refiner").Logger())
	defer refiner.Wait()

	var alerter scheduler.Alerter = alert.Nop{}
	if cfg.OwnerAlerts() {
		tg, err := alert.NewTelegram(cfg.TelegramToken, cfg.OwnerChatID, log.With().Str("component", "alert").Logger())
		if err != nil {
			return err
		}
		alerter = tg
	}

	ticker := scheduler.New("ticker", scoreboard, store, reg, d, log,
		scheduler.WithMetrics(collector),
		scheduler.WithAlerter(alerter, cfg.AlertAfter),
		scheduler.WithAfterDispatch(func(ctx context.Context, ev model.Event) {
			refiner.Refine(ctx, ev, func(ctx context.Context) (model.Snapshot, error) {
				return scoreboard.FetchSnapshot(ctx, ev.EntityID)
			})
		}),
	)
	ticker.SetTickInterval(time.Duration(cfg.TickerInterval))

	news := scheduler.New("news", feeds, store, reg, d, log,
		scheduler.WithMetrics(collector),
		scheduler.WithAlerter(alerter, cfg.AlertAfter),
	)
	news.SetTickInterval(time.Duration(cfg.NewsInterval))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Run(ctx) })
	g.Go(func() error { return ticker.Run(ctx) })
	g.Go(func() error { return news.Run(ctx) })
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(ctx, cfg.MetricsAddr, collector, log) })
	}

	log.Info().
		Dur("ticker_interval", time.Duration(cfg.TickerInterval)).
		Dur("news_interval", time.Duration(cfg.NewsInterval)).
		Msg("starting bot")
	return g.Wait()
}

func serveMetrics(ctx context.Context, addr string, c *metrics.Collector, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(c))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}
