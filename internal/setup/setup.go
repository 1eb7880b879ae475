package setup

import (
	"context"
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"vigil/internal/database"
	"vigil/internal/ensemble"
	"vigil/internal/feature"
	"vigil/internal/logging"
	"vigil/internal/model"
	"vigil/internal/personalize"
	"vigil/internal/scoring"
	"vigil/internal/session"
	"vigil/internal/srvenv"
	"vigil/pkg/metrics"
)

type DatabaseConfigProvider interface {
	DatabaseConfig() *database.Config
}

type ModelConfigProvider interface {
	ModelConfig() *model.Config
}

type ScoringConfigProvider interface {
	ScoringConfig() *scoring.Config
}

type SessionConfigProvider interface {
	SessionConfig() *session.Config
}

// Setup processes the environment configuration and assembles the service
// environment: storage, instrumentation, and the session manager factory.
func Setup(ctx context.Context, config interface{}) (*srvenv.SrvEnv, error) {
	logger := logging.FromContext(ctx)
	var serverEnvOpts []srvenv.Option
	if err := envconfig.Process("", config); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}

	var db *database.DB
	if dbConfigProvider, ok := config.(DatabaseConfigProvider); ok {
		logger.Info("Configuring db")
		dbFromEnv, err := database.NewFromEnv(ctx, dbConfigProvider.DatabaseConfig())
		if err != nil {
			return nil, fmt.Errorf("unable to open database: %v", err)
		}
		db = dbFromEnv
		serverEnvOpts = append(serverEnvOpts, srvenv.WithDatabase(db))
	}

	mtr := metrics.New()
	serverEnvOpts = append(serverEnvOpts, srvenv.WithMetrics(mtr))

	if _, ok := config.(SessionConfigProvider); ok {
		logger.Info("Configuring session manager")
		provideFn, err := ProvideSessionManagerFor(ctx, config, db, mtr)
		if err != nil {
			return nil, fmt.Errorf("unable create session manager provide function: %v", err)
		}
		serverEnvOpts = append(serverEnvOpts, srvenv.WithSessionManager(provideFn))
	}

	return srvenv.New(serverEnvOpts...), nil
}

// ProvideSessionManagerFor builds the whole scoring stack and returns the
// manager factory.
func ProvideSessionManagerFor(
	ctx context.Context,
	config interface{},
	db *database.DB,
	mtr *metrics.Metrics,
) (session.ProvideFn, error) {
	if db == nil {
		return nil, fmt.Errorf("database instance is not created")
	}

	modelConfigProvider, ok := config.(ModelConfigProvider)
	if !ok {
		return nil, fmt.Errorf("unable read model config")
	}
	scoringConfigProvider, ok := config.(ScoringConfigProvider)
	if !ok {
		return nil, fmt.Errorf("unable read scoring config")
	}
	sessionConfigProvider, ok := config.(SessionConfigProvider)
	if !ok {
		return nil, fmt.Errorf("unable read session config")
	}

	store, err := model.NewStore(ctx, db, modelConfigProvider.ModelConfig())
	if err != nil {
		return nil, fmt.Errorf("unable create model store: %v", err)
	}
	pred, err := ensemble.New(ctx, store, ensemble.WithFeatureNames(feature.FeatureNames()))
	if err != nil {
		return nil, fmt.Errorf("unable create ensemble: %v", err)
	}
	profile, err := personalize.New(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("unable create personalization engine: %v", err)
	}

	eng := feature.NewEngineer()
	rules := scoring.NewRuleEngine(scoringConfigProvider.ScoringConfig().GraceWindow)
	orch := scoring.NewOrchestrator(rules, eng, pred, profile)
	sessionCfg := sessionConfigProvider.SessionConfig()

	return func(shutdownCh chan<- error) (*session.Manager, error) {
		return session.New(db, orch, eng, pred, profile, mtr, shutdownCh, sessionCfg.AsOptions()...)
	}, nil
}
