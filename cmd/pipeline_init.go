package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/flw-audit/internal/cache"
	"github.com/sells-group/flw-audit/internal/config"
	"github.com/sells-group/flw-audit/internal/followup"
	"github.com/sells-group/flw-audit/internal/gps"
	"github.com/sells-group/flw-audit/internal/model"
	"github.com/sells-group/flw-audit/internal/pipeline"
	"github.com/sells-group/flw-audit/internal/resilience"
	"github.com/sells-group/flw-audit/internal/source"
	"github.com/sells-group/flw-audit/internal/visit"
	"github.com/sells-group/flw-audit/pkg/recordapi"
)

// pipelineEnv holds the snapshot store, fetch layer, and pipeline needed by
// the analyze and serve commands.
type pipelineEnv struct {
	Store         cache.Store
	Fetcher       *source.Fetcher
	Pipeline      *pipeline.Pipeline
	DefaultDomain string
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func newPipelineEnv(st cache.Store, client recordapi.Client, auth source.Authenticator, profile cache.Profile, pcfg pipeline.Config, domain string) *pipelineEnv {
	fetcher := source.NewFetcher(client, st, cache.NewPolicy(profile), auth)
	return &pipelineEnv{
		Store:         st,
		Fetcher:       fetcher,
		Pipeline:      pipeline.New(fetcher, pcfg),
		DefaultDomain: domain,
	}
}

// initPipeline validates configuration for mode, opens the snapshot store,
// builds the record API client, and wires the pipeline. Callers should defer
// env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	pcfg, err := pipelineConfig(cfg.Rules)
	if err != nil {
		return nil, err
	}
	profile, err := cacheProfile(cfg.Cache)
	if err != nil {
		return nil, err
	}

	client, auth, err := initClient()
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	zap.L().Info("pipeline initialized",
		zap.String("source", cfg.Source.Driver),
		zap.String("cache", cfg.Cache.Driver),
		zap.String("profile", profile.Name),
	)
	return newPipelineEnv(st, client, auth, profile, pcfg, cfg.Source.Domain), nil
}

// initStore opens the configured snapshot store and creates its schema.
func initStore(ctx context.Context) (cache.Store, error) {
	switch cfg.Cache.Driver {
	case "memory":
		return cache.NewMemory(), nil
	case "sqlite":
		dsn := cfg.Cache.DatabaseURL
		if dsn == "" {
			dsn = "flw-audit.db"
		}
		st, err := cache.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
		return st, nil
	case "postgres":
		st, err := cache.NewPostgres(ctx, cfg.Cache.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
		return st, nil
	case "redis":
		st, err := cache.NewRedis(ctx, cfg.Cache.RedisAddr, 0)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("unsupported cache driver: %s", cfg.Cache.Driver)
	}
}

// initClient builds the record API client. The HTTP client gets an
// authenticator that reloads credentials from configuration.
func initClient() (recordapi.Client, source.Authenticator, error) {
	switch cfg.Source.Driver {
	case "fixture":
		fc, err := recordapi.LoadFixture(cfg.Source.FixturePath)
		if err != nil {
			return nil, nil, err
		}
		return fc, nil, nil
	case "http":
		timeout := time.Duration(cfg.Source.TimeoutSecs) * time.Second
		client := recordapi.NewClient(cfg.Source.Username, cfg.Source.APIKey,
			recordapi.WithBaseURL(cfg.Source.BaseURL),
			recordapi.WithPageSize(cfg.Source.PageSize),
			recordapi.WithRateLimit(cfg.Source.RatePerSec),
			recordapi.WithHTTPClient(&http.Client{Timeout: timeout}),
			recordapi.WithRetry(resilience.FromConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs)),
		)
		return client, reloadCredentials(client, config.Load), nil
	default:
		return nil, nil, eris.Errorf("unsupported source driver: %s", cfg.Source.Driver)
	}
}

// reloadCredentials re-reads configuration so a rotated API key is picked up
// without a restart.
func reloadCredentials(client *recordapi.HTTPClient, load func() (*config.Config, error)) source.AuthenticatorFunc {
	return func(_ context.Context) error {
		fresh, err := load()
		if err != nil {
			return eris.Wrap(err, "reload credentials")
		}
		if fresh.Source.APIKey == "" {
			return eris.New("reload credentials: source.api_key is empty")
		}
		client.SetCredentials(fresh.Source.Username, fresh.Source.APIKey)
		zap.L().Info("record api credentials reloaded", zap.String("username", fresh.Source.Username))
		return nil
	}
}

// pipelineConfig converts the rules section into pipeline thresholds.
func pipelineConfig(r config.RulesConfig) (pipeline.Config, error) {
	pcfg := pipeline.Config{
		FollowUp: followup.Config{
			Rules: visit.Rules{
				OnTimeWindowDays: r.OnTimeWindowDays,
				GracePeriodDays:  r.GracePeriodDays,
			},
			Colors:      followup.Colors{Good: r.Colors.Good, Warning: r.Colors.Warning},
			OnTrack:     followup.OnTrack{MinCompleted: r.OnTrack.MinCompleted, MaxMissed: r.OnTrack.MaxMissed},
			SameDayPair: followup.DefaultConfig().SameDayPair,
		},
		GPS: gps.Config{
			FlagThresholdKM: r.GPSFlagThresholdKM,
			MinAppVersion:   r.MinAppVersion,
			TrendDays:       r.TrendDays,
		},
		GPSWindowDays: r.GPSWindowDays,
	}

	if len(r.SameDayPair) == 2 {
		var pair [2]model.VisitType
		for i, label := range r.SameDayPair {
			vt, ok := visit.NormalizeVisitType(label)
			if !ok {
				return pipeline.Config{}, eris.Errorf("rules.same_day_pair: unknown visit type %q", label)
			}
			pair[i] = vt
		}
		pcfg.FollowUp.SameDayPair = pair
	}
	return pcfg, nil
}

// cacheProfile resolves the configured cache profile.
func cacheProfile(c config.CacheConfig) (cache.Profile, error) {
	name, p, err := c.ActiveProfile()
	if err != nil {
		return cache.Profile{}, err
	}
	return cache.Profile{
		Name:             name,
		PercentTolerance: p.PercentTolerance,
		TimeTolerance:    p.TimeTolerance(),
	}, nil
}
