package cmd

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"netglobe/cmd/commands"
	"netglobe/internal/config"
	"netglobe/internal/metrics"
	"netglobe/internal/models"
	"netglobe/internal/pipeline"
	"netglobe/internal/sink"
	"netglobe/internal/system"
	"netglobe/internal/web"

	"github.com/sirupsen/logrus"
)

// run captures until SIGINT/SIGTERM or a fatal capture error.
func run(env *commands.Env) error {
	defer env.Close()
	cfg := env.Config
	log := env.Log

	db, err := env.DB()
	if err != nil {
		return err
	}
	resolver, err := env.Resolver()
	if err != nil {
		return err
	}
	pruneHistory(db, cfg.Pipeline.HistoryRetention, log)

	recent := sink.NewRecent(cfg.Sinks.RecentSize)
	out, closeSinks, err := buildSinks(env, recent)
	if err != nil {
		return err
	}
	defer closeSinks()

	m := metrics.New()
	p, err := pipeline.New(pipeline.Config{
		Capture:            cfg.CaptureConfig(),
		Timeouts:           cfg.Dedup,
		CleanupInterval:    cfg.Pipeline.CleanupInterval,
		IgnorePollInterval: cfg.Pipeline.IgnorePollInterval,
		Classifier:         cfg.Classifier(),
		Resolver:           resolver,
		Sink:               out,
		Ignore:             system.IgnoreStore{DB: db},
		Metrics:            m,
		Logger:             log,
	})
	if err != nil {
		return err
	}
	m.WatchState(p.TrackerStats, resolver.Stats)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Admin.Enabled {
		srv := web.NewServer(web.Options{
			Listen: cfg.Admin.Listen,
			DB:     db,
			Events: recent,
			Stats: func() any {
				return map[string]any{
					"pipeline": p.Stats(),
					"geo":      resolver.Stats(),
				}
			},
			Metrics: m.Handler(),
			Logger:  log,
		})
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.WithError(err).Error("admin endpoint stopped")
			}
		}()
	}

	log.WithFields(logrus.Fields{
		"version": Version,
		"mode":    cfg.Capture.Mode,
		"sinks":   out.Len(),
	}).Info("netglobe starting")

	err = p.Run(ctx)
	log.WithField("stats", p.Stats()).Info("netglobe stopped")
	if err != nil {
		return models.Wrap(models.CodeCaptureFatal, models.ExitExternal, "connection capture failed", err)
	}
	return nil
}

// buildSinks assembles the configured outputs. The recent ring always
// receives events so the admin endpoint has something to show.
func buildSinks(env *commands.Env, recent *sink.Recent) (*sink.Multi, func(), error) {
	cfg := env.Config.Sinks
	out := sink.NewMulti(recent)
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Console {
		switch cfg.ConsoleFormat {
		case config.ConsoleTable:
			out.Add(sink.NewConsoleFormat(os.Stdout, true))
		case config.ConsoleJSON:
			out.Add(sink.NewConsoleFormat(os.Stdout, false))
		default:
			out.Add(sink.NewConsole(os.Stdout))
		}
	}

	if cfg.JSONLines != "" {
		j, err := sink.NewJSONLines(cfg.JSONLines, env.Log)
		if err != nil {
			return nil, nil, models.Wrap(models.CodeSinkOpen, models.ExitIO, "failed to open JSON lines output", err)
		}
		out.Add(j)
		closers = append(closers, func() { _ = j.Close() })
	}

	if cfg.History {
		db, err := env.DB()
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		out.Add(sink.NewHistory(db, env.Log))
	}

	if cfg.MQTT.Enabled() {
		mq, err := sink.DialMQTT(cfg.MQTT, env.Log)
		if err != nil {
			closeAll()
			return nil, nil, models.Wrap(models.CodeSinkOpen, models.ExitExternal, "failed to connect to MQTT broker", err)
		}
		out.Add(mq)
		closers = append(closers, mq.Close)
	}

	return out, closeAll, nil
}

func pruneHistory(db *sql.DB, retention time.Duration, log *logrus.Logger) {
	if retention <= 0 {
		return
	}
	n, err := system.PruneHistory(db, time.Now().Add(-retention))
	if err != nil {
		log.WithError(err).Warn("history prune failed")
		return
	}
	if n > 0 {
		log.WithField("rows", n).Info("pruned old history")
	}
}
