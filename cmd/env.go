package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/communityroots/resource-cli/internal/cost"
	"github.com/communityroots/resource-cli/internal/store"
	"github.com/communityroots/resource-cli/internal/verify"
	anthropicpkg "github.com/communityroots/resource-cli/pkg/anthropic"
	"github.com/communityroots/resource-cli/pkg/crossref"
	"github.com/communityroots/resource-cli/pkg/geocode"
	"github.com/communityroots/resource-cli/pkg/judge"
	"github.com/communityroots/resource-cli/pkg/probe"
	"github.com/communityroots/resource-cli/pkg/publish"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "resource-cli.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// importEnv holds the store, verification agent, publisher, and cost logger
// shared by the import/resume/verify/serve commands.
type importEnv struct {
	Store     store.Store
	Agent     *verify.Agent
	Publisher publish.Publisher
	CostLog   *cost.Logger
}

// Close stops the cost logger and releases the store. Callers should defer it.
func (e *importEnv) Close() {
	if e.CostLog != nil {
		e.CostLog.Stop()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initImportEnv validates config for the given mode, opens and migrates the
// store, and wires the verification agent with its external clients and cost
// telemetry. Callers should defer env.Close().
func initImportEnv(ctx context.Context, mode string, skipGeocoding bool) (*importEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	costLog := cost.NewLogger(st, cost.LoggerOptions{
		QueueSize:     cfg.Verify.CostBuffer,
		FlushInterval: time.Duration(cfg.Verify.CostFlushSecs) * time.Second,
	})
	costLog.Start(ctx)

	prober := probe.NewClient(probe.WithTimeout(time.Duration(cfg.Verify.ProbeTimeoutSecs) * time.Second))

	var geoOpts []geocode.Option
	if cfg.Geocode.GoogleKey != "" {
		geoOpts = append(geoOpts, geocode.WithGoogleAPIKey(cfg.Geocode.GoogleKey))
	}
	if cfg.Geocode.RequestsPerSecond > 0 {
		geoOpts = append(geoOpts, geocode.WithRateLimit(cfg.Geocode.RequestsPerSecond))
	}
	geocoder := geocode.NewClient(geoOpts...)

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	contentJudge := judge.New(anthropicClient, judge.WithModel(cfg.Anthropic.Model))

	// Cross-reference sources are optional; the agent degrades to
	// insufficient-data handling when none are configured.
	var sources []crossref.Source
	if cfg.CrossRef.RegistryKey != "" {
		sources = append(sources, crossref.NewServiceRegistry(cfg.CrossRef.RegistryBaseURL, cfg.CrossRef.RegistryKey))
	}
	if cfg.CrossRef.PlacesKey != "" {
		sources = append(sources, crossref.NewPlacesDirectory(cfg.CrossRef.PlacesKey))
	}
	if len(sources) == 0 {
		zap.L().Warn("no cross-reference sources configured, tier 3 will report insufficient data")
	}

	agent := verify.New(prober, geocoder, contentJudge, sources, cost.NewCalculator(cfg.Pricing),
		verify.WithCostRecorder(costLog.Recorder()),
		verify.WithJudgeModel(cfg.Anthropic.Model),
		verify.WithSkipGeocoding(skipGeocoding),
	)

	return &importEnv{
		Store:     st,
		Agent:     agent,
		Publisher: publish.New(cfg.Publish.BaseURL, cfg.Publish.Token),
		CostLog:   costLog,
	}, nil
}
