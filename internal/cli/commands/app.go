package commands

import (
	"context"
	"path/filepath"

	"github.com/koustreak/arcforge/internal/config"
	"github.com/koustreak/arcforge/internal/database"
	"github.com/koustreak/arcforge/internal/database/mysql"
	"github.com/koustreak/arcforge/internal/database/postgres"
	"github.com/koustreak/arcforge/internal/database/sqlite"
	"github.com/koustreak/arcforge/internal/errs"
	"github.com/koustreak/arcforge/internal/logger"
	"github.com/koustreak/arcforge/internal/model"
	"github.com/koustreak/arcforge/internal/query"
)

// app is everything a command needs, built from the config file.
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	reg   *model.Registry
	metas []*model.Meta
	mgr   *database.Manager
	eng   *query.Engine
}

// loadApp reads the config and the entity definitions. It does not touch
// the database; call connect for that.
func loadApp(opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	log := logger.New(&cfg.Log)
	logger.SetGlobal(log)

	path := cfg.Definitions
	if !filepath.IsAbs(path) && opts.configPath != "" {
		path = filepath.Join(filepath.Dir(opts.configPath), path)
	}
	reg := model.NewRegistry()
	metas, err := model.LoadDefinitionsFile(path, reg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "load definitions "+path, err)
	}
	log.InfoWith("definitions loaded", map[string]any{"path": path, "entities": len(metas)})

	return &app{cfg: cfg, log: log, reg: reg, metas: metas}, nil
}

// connect opens the configured database. The connection itself is lazy;
// the first statement dials.
func (a *app) connect() error {
	backend, err := backendFor(a.cfg.Database.Driver)
	if err != nil {
		return err
	}
	a.mgr = database.NewManager(&a.cfg.Database, backend, a.log)
	a.eng = query.NewEngine(a.mgr, a.log)
	return nil
}

func (a *app) close() {
	if a.mgr != nil {
		_ = a.mgr.Close()
	}
}

// entity resolves a name or table from the command line.
func (a *app) entity(name string) (*model.Meta, error) {
	if m, ok := a.reg.Lookup(name); ok {
		return m, nil
	}
	if m, ok := a.reg.LookupTable(name); ok {
		return m, nil
	}
	return nil, errs.Newf(errs.ErrKindNotFound, "unknown entity %q", name)
}

// selected returns the named entities in definition order, or all of them.
func (a *app) selected(names []string) ([]*model.Meta, error) {
	if len(names) == 0 {
		return a.metas, nil
	}
	want := make(map[*model.Meta]bool, len(names))
	for _, n := range names {
		m, err := a.entity(n)
		if err != nil {
			return nil, err
		}
		want[m] = true
	}
	var out []*model.Meta
	for _, m := range a.metas {
		if want[m] {
			out = append(out, m)
		}
	}
	return out, nil
}

func backendFor(driver database.Driver) (database.Backend, error) {
	switch driver {
	case database.DriverPostgres:
		return postgres.Backend, nil
	case database.DriverMySQL:
		return mysql.Backend, nil
	case database.DriverSQLite:
		return sqlite.Backend, nil
	default:
		return database.Backend{}, errs.Newf(errs.ErrKindInvalidInput, "unsupported driver %q", driver)
	}
}

// run loads the app, connects, and hands it to fn.
func run(ctx context.Context, opts *rootOptions, fn func(context.Context, *app) error) error {
	a, err := loadApp(opts)
	if err != nil {
		return err
	}
	if err := a.connect(); err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}
