package di

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-reply-drafter/internal/adapters/filter"
	"github.com/mikey/llm-reply-drafter/internal/adapters/store"
	"github.com/mikey/llm-reply-drafter/internal/clustering"
	"github.com/mikey/llm-reply-drafter/internal/config"
	"github.com/mikey/llm-reply-drafter/internal/core"
	"github.com/mikey/llm-reply-drafter/internal/embedding"
	"github.com/mikey/llm-reply-drafter/internal/factory"
	"github.com/mikey/llm-reply-drafter/internal/logging"
	"github.com/mikey/llm-reply-drafter/internal/metrics"
	"github.com/mikey/llm-reply-drafter/internal/normalizer"
	"github.com/mikey/llm-reply-drafter/internal/orchestrator"
	"github.com/mikey/llm-reply-drafter/internal/patterns"
	"github.com/mikey/llm-reply-drafter/internal/ports"
	"github.com/mikey/llm-reply-drafter/internal/registry"
	"github.com/mikey/llm-reply-drafter/internal/retrieval"
	"github.com/mikey/llm-reply-drafter/internal/spamgate"
	"github.com/mikey/llm-reply-drafter/internal/utils"
	"github.com/mikey/llm-reply-drafter/internal/whitelist"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register the metrics registry, served on /metrics by the daemon
	if err := container.Provide(func() *prometheus.Registry {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		return reg
	}); err != nil {
		return nil, err
	}

	if err := providePipeline(container); err != nil {
		return nil, err
	}
	return container, nil
}

// providePipeline registers everything downstream of configuration, logger and metrics registry
func providePipeline(container *dig.Container) error {
	providers := []interface{}{
		func(reg *prometheus.Registry) *metrics.Metrics {
			return metrics.New(reg)
		},

		// Store
		func(cfg *config.Config) (*pgxpool.Pool, error) {
			sc := cfg.GetStore()
			return store.NewPool(context.Background(), sc.PostgresDSN, sc.MaxConns)
		},
		store.NewPostgresStore,
		func(s *store.PostgresStore) core.AccountRepository { return s },
		func(s *store.PostgresStore) core.EmailRepository { return s },
		func(s *store.PostgresStore) filter.AccountResolver { return s },

		// Factories
		factory.NewLLMFactory,
		factory.NewEmbeddingFactory,
		factory.NewProfileFactory,
		factory.NewLockFactory,
		factory.NewFilterFactory,

		// Profile repository and pattern lock
		func(f *factory.ProfileFactory, s *store.PostgresStore) (core.ProfileRepository, error) {
			return f.CreateProfileRepository(s)
		},
		func(f *factory.LockFactory, pool *pgxpool.Pool) (core.Locker, error) {
			return f.CreateLocker(context.Background(), pool)
		},

		// Model invocation
		utils.NewTextProcessor,
		func(f *factory.LLMFactory) *registry.Registry[core.ModelInvoker] {
			return registry.New[core.ModelInvoker](f.CreateInvoker)
		},
		func(cfg *config.Config, r *registry.Registry[core.ModelInvoker]) (core.ModelInvoker, error) {
			return r.Get(cfg.GetLLM().Provider)
		},

		// Spam gate
		func(cfg *config.Config, logger *zap.Logger) *whitelist.Checker {
			domains := cfg.GetSpam().WhitelistedDomains
			if len(domains) > 0 {
				logger.Info("Loaded whitelisted domains", zap.Strings("domains", domains))
			}
			return whitelist.NewChecker(domains, logger)
		},
		func(cfg *config.Config, s *store.PostgresStore, invokers *registry.Registry[core.ModelInvoker], domains *whitelist.Checker, logger *zap.Logger) *registry.Registry[*spamgate.Gate] {
			threshold := cfg.GetSpam().WhitelistThreshold
			return registry.New[*spamgate.Gate](func(provider string) (*spamgate.Gate, error) {
				inv, err := invokers.Get(provider)
				if err != nil {
					return nil, err
				}
				return spamgate.New(s, inv, domains, threshold, logger.With(zap.String("detector", provider))), nil
			})
		},
		func(cfg *config.Config, gates *registry.Registry[*spamgate.Gate]) (*spamgate.Gate, error) {
			return gates.Get(cfg.GetSpam().Provider)
		},

		// Embeddings and retrieval
		func(f *factory.EmbeddingFactory) (*embedding.Engine, error) {
			return f.CreateEngine()
		},
		func(cfg *config.Config, engine *embedding.Engine, s *store.PostgresStore, profiles core.ProfileRepository, logger *zap.Logger) *embedding.Indexer {
			return embedding.NewIndexer(engine, s, profiles, cfg.GetPatterns().CorpusLimit, logger)
		},
		func(cfg *config.Config, s *store.PostgresStore, ix *embedding.Indexer, logger *zap.Logger) *retrieval.Service {
			rc := cfg.GetRetrieval()
			var keywords retrieval.KeywordSource
			if rc.KeywordWeight > 0 {
				keywords = ix
			}
			return retrieval.NewService(s, keywords, retrieval.Weights{
				Semantic: rc.SemanticWeight,
				Style:    rc.StyleWeight,
				Keyword:  rc.KeywordWeight,
			}, rc.CandidateLimit, logger)
		},

		// Style and writing patterns
		func(cfg *config.Config, s *store.PostgresStore, logger *zap.Logger) *clustering.Profiler {
			cc := cfg.GetClustering()
			return clustering.NewProfiler(s, s, cc.K, cc.MaxIterations, cc.Seed, logger)
		},
		func(cfg *config.Config, s *store.PostgresStore, profiles core.ProfileRepository, locker core.Locker, inv core.ModelInvoker, m *metrics.Metrics, logger *zap.Logger) *patterns.Analyzer {
			pc := cfg.GetPatterns()
			return patterns.NewAnalyzer(s, profiles, locker, inv, patterns.Options{
				Thresholds: patterns.Thresholds{
					Short:           pc.ShortThreshold,
					Long:            pc.LongThreshold,
					TrimmedFraction: pc.TrimmedFraction,
				},
				BatchSize:       pc.BatchSize,
				ConfidenceFloor: pc.ConfidenceFloor,
				LockWait:        pc.LockWait,
				CorpusLimit:     pc.CorpusLimit,
			}, m, logger)
		},

		// Draft pipeline
		normalizer.New,
		func(
			cfg *config.Config,
			parser *normalizer.Normalizer,
			s *store.PostgresStore,
			gate *spamgate.Gate,
			inv core.ModelInvoker,
			engine *embedding.Engine,
			search *retrieval.Service,
			analyzer *patterns.Analyzer,
			profiler *clustering.Profiler,
			m *metrics.Metrics,
			logger *zap.Logger,
		) *orchestrator.Orchestrator {
			rc := cfg.GetRetrieval()
			return orchestrator.New(orchestrator.Deps{
				Parser:   parser,
				Accounts: s,
				Spam:     gate,
				Invoker:  inv,
				Encoder:  engine,
				Searcher: search,
				Patterns: analyzer,
				Styles:   profiler,
				Drafts:   s,
			}, orchestrator.Options{
				TopN:     rc.TopN,
				MinScore: rc.MinScore,
				Lookback: rc.Lookback,
			}, m, logger)
		},
		func(o *orchestrator.Orchestrator) ports.DraftPipeline { return o },

		// Intake
		func(f *factory.FilterFactory) (ports.EmailFilter, error) {
			return f.CreateEmailFilter()
		},
	}

	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return err
		}
	}
	return nil
}
