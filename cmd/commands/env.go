package commands

import (
	"database/sql"
	"fmt"

	"netglobe/internal/config"
	"netglobe/internal/geo"
	"netglobe/internal/models"
	"netglobe/internal/system"

	"github.com/sirupsen/logrus"
)

// Env carries resolved settings into commands. Resources are opened lazily
// and released by Close.
type Env struct {
	Config     config.Config
	ConfigPath string
	Version    string
	Log        *logrus.Logger

	db       *sql.DB
	resolver *geo.Resolver
}

// DB opens the SQLite database on first use.
func (e *Env) DB() (*sql.DB, error) {
	if e.db != nil {
		return e.db, nil
	}
	db, err := system.InitDB(e.Config.DBPath)
	if err != nil {
		return nil, models.Wrap(models.CodeDBOpen, models.ExitIO, "failed to open database", err)
	}
	e.db = db
	return db, nil
}

// MustDB is DB for commands that cannot continue without it.
func (e *Env) MustDB() *sql.DB {
	db, err := e.DB()
	if err != nil {
		fatal(err)
	}
	return db
}

// DBPath is where the database lives or would live.
func (e *Env) DBPath() string {
	if e.Config.DBPath != "" {
		return e.Config.DBPath
	}
	p, err := system.DefaultDBPath()
	if err != nil {
		return "(unknown)"
	}
	return p
}

// CachePath is the geo cache location for the configured backend.
func (e *Env) CachePath() string {
	g := e.Config.Geo
	switch g.CacheBackend {
	case config.BackendSQLite:
		return e.DBPath()
	case config.BackendNone:
		return ""
	}
	if g.CachePath != "" {
		return g.CachePath
	}
	p, err := system.DefaultCachePath(g.CacheBackend)
	if err != nil {
		return ""
	}
	return p
}

// OpenGeoStore opens the configured persistent cache backend.
func (e *Env) OpenGeoStore() (geo.Store, error) {
	switch e.Config.Geo.CacheBackend {
	case config.BackendNone:
		return nil, nil
	case config.BackendSQLite:
		db, err := e.DB()
		if err != nil {
			return nil, err
		}
		return geo.NewSQLiteStore(db)
	case config.BackendPebble:
		return geo.OpenPebbleStore(e.CachePath())
	default:
		return geo.NewJSONStore(e.CachePath()), nil
	}
}

// Resolver builds the geo resolver on first use.
func (e *Env) Resolver() (*geo.Resolver, error) {
	if e.resolver != nil {
		return e.resolver, nil
	}
	store, err := e.OpenGeoStore()
	if err != nil {
		return nil, models.Wrap(models.CodeCacheOpen, models.ExitIO, "failed to open geo cache", err)
	}

	gc := e.Config.GeoConfig(geo.UserAgent(e.Version))
	gc.Store = store
	gc.Logger = e.Log
	e.resolver = geo.New(gc)
	return e.resolver, nil
}

func (e *Env) MustResolver() *geo.Resolver {
	r, err := e.Resolver()
	if err != nil {
		fatal(err)
	}
	return r
}

// Close flushes the resolver and closes the database.
func (e *Env) Close() {
	if e.resolver != nil {
		if err := e.resolver.Close(); err != nil {
			e.Log.WithError(err).Warn("geo cache flush failed")
		}
		e.resolver = nil
	}
	if e.db != nil {
		_ = e.db.Close()
		e.db = nil
	}
}

func usage(line string) {
	fatal(models.NewCLIError("USAGE", models.ExitUsage, fmt.Sprintf("usage: netglobe %s", line)))
}
