package srvenv

import (
	"context"

	"vigil/internal/database"
	"vigil/internal/session"
	"vigil/pkg/metrics"
)

type Option func(*SrvEnv) *SrvEnv

func New(opts ...Option) *SrvEnv {
	env := &SrvEnv{}
	for _, f := range opts {
		env = f(env)
	}

	return env
}

type SrvEnv struct {
	database *database.DB
	metrics  *metrics.Metrics
	session  session.ProvideFn
}

func (s *SrvEnv) ProvideSessionManager() session.ProvideFn {
	return s.session
}

func (s *SrvEnv) Database() *database.DB {
	return s.database
}

func (s *SrvEnv) Metrics() *metrics.Metrics {
	return s.metrics
}

func WithSessionManager(fn session.ProvideFn) Option {
	return func(s *SrvEnv) *SrvEnv {
		s.session = fn
		return s
	}
}

func WithDatabase(db *database.DB) Option {
	return func(s *SrvEnv) *SrvEnv {
		s.database = db
		return s
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *SrvEnv) *SrvEnv {
		s.metrics = m
		return s
	}
}

func (s *SrvEnv) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}

	if s.database != nil {
		return s.database.Close(ctx)
	}
	return nil
}
