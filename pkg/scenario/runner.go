// Package scenario drives one timed playback attempt: it builds a player,
// binds telemetry, loads a manifest and finishes exactly once.
package scenario

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/saveenergy/playertester/internal/logging"
	"github.com/saveenergy/playertester/pkg/binder"
	"github.com/saveenergy/playertester/pkg/player"
	"github.com/saveenergy/playertester/pkg/types"
)

type Runner struct {
	factory player.Factory
	logger  *logging.Logger
}

type RunnerOption func(*Runner)

func WithLogger(l *logging.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRunner(factory player.Factory, opts ...RunnerOption) *Runner {
	r := &Runner{
		factory: factory,
		logger:  logging.NewLogger("scenario"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start prepares the environment, builds and configures a player, binds
// telemetry, kicks off the manifest load and arms the timeout. Errors are
// returned only for invalid config or a broken environment; once Start
// returns a Session, every later failure is absorbed and the session still
// completes.
func (r *Runner) Start(ctx context.Context, media player.MediaElement, sink player.Sink, cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.New().String()
	}
	logger := r.logger.With(logging.F("run", cfg.RunID))

	if err := r.factory.InstallShims(ctx); err != nil {
		return nil, fmt.Errorf("install shims: %w", err)
	}
	p, err := r.factory.NewPlayer(ctx, media)
	if err != nil {
		return nil, fmt.Errorf("create player: %w", err)
	}
	opts := player.Options{Streaming: player.StreamingOptions{LowLatencyMode: cfg.LowLatency}}
	if err := p.Configure(opts); err != nil {
		if derr := p.Destroy(); derr != nil {
			logger.Warn("destroy after configure failure", logging.F("error", derr))
		}
		return nil, fmt.Errorf("configure player: %w", err)
	}

	s := newSession(cfg, p, media, logger)
	s.binding = binder.Bind(p, media, sink, binder.WithPollInterval(cfg.PollInterval))
	s.watchPlayback()
	s.begin(ctx)

	logger.Info("Scenario started",
		logging.F("manifest", cfg.ManifestURL),
		logging.F("timeout", cfg.Timeout),
		logging.F("low_latency", cfg.LowLatency),
		logging.F("finish_on", cfg.FinishOn))
	return s, nil
}

// Run starts a session and blocks until it completes.
func (r *Runner) Run(ctx context.Context, media player.MediaElement, sink player.Sink, cfg Config) (types.Result, error) {
	s, err := r.Start(ctx, media, sink, cfg)
	if err != nil {
		return types.Result{}, err
	}
	return s.Wait(), nil
}
