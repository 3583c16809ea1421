package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/company"
	"github.com/sells-group/prospect-cli/internal/discovery"
	"github.com/sells-group/prospect-cli/internal/intent"
	"github.com/sells-group/prospect-cli/internal/source"
	"github.com/sells-group/prospect-cli/pkg/places"
	"github.com/sells-group/prospect-cli/pkg/websearch"
)

// appEnv bundles the wired application components a command needs.
type appEnv struct {
	runs      discovery.RunStore
	companies company.Store
	registry  *intent.Registry
	engine    *discovery.Engine
	lifecycle *discovery.Lifecycle
	mat       *discovery.Materializer

	pool *pgxpool.Pool
}

func (e *appEnv) Close() {
	if e.runs != nil {
		_ = e.runs.Close()
	}
	if e.pool != nil {
		e.pool.Close()
	}
}

// initEnv wires stores, channels, and the run engine from config.
func initEnv(ctx context.Context) (*appEnv, error) {
	registry, err := intent.LoadRegistry(cfg.Intents.Path)
	if err != nil {
		return nil, err
	}

	resolver := intent.NewResolver(registry, intent.Ceilings{
		MaxCompanies:        cfg.Discovery.MaxCompaniesCeiling,
		MaxLeads:            cfg.Discovery.MaxLeadsCeiling,
		MaxQueries:          cfg.Discovery.MaxQueriesPerRun,
		TimeBudgetMs:        cfg.Discovery.TimeBudgetCeilingMs,
		DefaultTimeBudgetMs: cfg.Discovery.DefaultTimeBudgetMs,
	})

	env := &appEnv{registry: registry}

	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "prospect.db"
		}
		runs, err := discovery.NewSQLiteRunStore(dsn)
		if err != nil {
			return nil, err
		}
		env.runs = runs
		env.companies = company.NewSQLiteStore(runs.DB())
	case "postgres":
		poolCfg, err := pgxpool.ParseConfig(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "parse database url")
		}
		poolCfg.MaxConns = cfg.Store.MaxConns
		poolCfg.MinConns = cfg.Store.MinConns

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, eris.Wrap(err, "connect postgres")
		}
		env.pool = pool
		env.runs = discovery.NewPostgresRunStore(pool)
		env.companies = company.NewPostgresStore(pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}

	if err := env.runs.Migrate(ctx); err != nil {
		env.Close()
		return nil, err
	}
	if err := env.companies.Migrate(ctx); err != nil {
		env.Close()
		return nil, err
	}

	if env.pool != nil {
		n, err := registry.Seed(ctx, env.pool)
		if err != nil {
			env.Close()
			return nil, err
		}
		if n > 0 {
			zap.L().Info("seeded intents", zap.Int64("count", n))
		}
	}

	sources := discovery.NewSourceRegistry()
	if cfg.Places.Key != "" {
		var opts []places.Option
		if cfg.Places.BaseURL != "" {
			opts = append(opts, places.WithBaseURL(cfg.Places.BaseURL))
		}
		client := places.NewClient(cfg.Places.Key, opts...)
		sources.Register(source.ChannelPlaces,
			source.NewPlacesSource(client, cfg.Places.RateLimit, cfg.Discovery.DirectoryBlocklist))
	}
	if cfg.WebSearch.Key != "" {
		var opts []websearch.Option
		if cfg.WebSearch.BaseURL != "" {
			opts = append(opts, websearch.WithBaseURL(cfg.WebSearch.BaseURL))
		}
		client := websearch.NewClient(cfg.WebSearch.Key, opts...)
		sources.Register(source.ChannelWebSearch,
			source.NewWebSearchSource(client, cfg.WebSearch.RateLimit, cfg.Discovery.DirectoryBlocklist))
	}

	env.mat = discovery.NewMaterializer(env.runs, env.companies)
	env.engine = discovery.NewEngine(env.runs, sources, resolver, env.mat)
	env.lifecycle = discovery.NewLifecycle(env.runs)

	return env, nil
}
