package scenario

import (
	"context"
	"sync"
	"time"

	"github.com/saveenergy/playertester/internal/logging"
	"github.com/saveenergy/playertester/pkg/binder"
	"github.com/saveenergy/playertester/pkg/errors"
	"github.com/saveenergy/playertester/pkg/player"
	"github.com/saveenergy/playertester/pkg/types"
)

// Session owns one player for the duration of a scenario.
type Session struct {
	cfg     Config
	media   player.MediaElement
	logger  *logging.Logger
	binding *binder.Binding
	subs    player.Subscriptions

	mu         sync.Mutex
	state      types.State
	player     player.Player
	timer      *time.Timer
	cancelLoad context.CancelFunc
	startedAt  time.Time
	loadErr    error
	playerErr  error

	// Held while Play is in flight; finish waits on it before Destroy.
	playing sync.WaitGroup

	done   chan struct{}
	result types.Result
}

func newSession(cfg Config, p player.Player, media player.MediaElement, logger *logging.Logger) *Session {
	return &Session{
		cfg:        cfg,
		media:      media,
		logger:     logger,
		player:     p,
		state:      types.StateIdle,
		startedAt:  time.Now(),
		cancelLoad: func() {},
		done:       make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.cfg.RunID }

func (s *Session) State() types.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Player returns the session's player, or nil once the session finished.
func (s *Session) Player() player.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player
}

// Done is closed when the session has finished.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session finishes and returns its result.
func (s *Session) Wait() types.Result {
	<-s.done
	return s.result
}

// Stop finishes the session early. It is safe to call any number of times.
func (s *Session) Stop() {
	s.finish(types.FinishCancelled)
}

// transition moves the state machine; it reports false for moves the current
// state does not allow. Callers hold s.mu.
func (s *Session) transition(to types.State) bool {
	ok := false
	switch s.state {
	case types.StateIdle:
		ok = to == types.StateLoading || to == types.StateFinished
	case types.StateLoading:
		ok = to == types.StatePlaying || to == types.StateFinished
	case types.StatePlaying:
		ok = to == types.StateFinished
	case types.StateFinished:
		ok = false
	}
	if ok {
		s.state = to
	}
	return ok
}

func (s *Session) watchPlayback() {
	p := s.player
	s.subs.Add(p.On(player.EventError, func(ev player.Event) {
		s.mu.Lock()
		if s.state == types.StateFinished {
			s.mu.Unlock()
			return
		}
		s.playerErr = ev.Err
		s.mu.Unlock()

		s.logger.Warn("Player error", logging.F("error", ev.Err))
		if s.cfg.FinishOn.Has(FinishOnPlayerError) {
			s.finish(types.FinishError)
		}
	}))
	if s.cfg.FinishOn.Has(FinishOnEnded) {
		s.subs.Add(s.media.On(player.EventEnded, func(player.Event) {
			s.finish(types.FinishEnded)
		}))
	}
}

func (s *Session) begin(ctx context.Context) {
	loadCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if !s.transition(types.StateLoading) {
		s.mu.Unlock()
		cancel()
		return
	}
	s.cancelLoad = cancel
	p := s.player
	s.timer = time.AfterFunc(s.cfg.Timeout, func() { s.finish(types.FinishTimeout) })
	s.mu.Unlock()

	go s.load(loadCtx, p)
	go func() {
		select {
		case <-ctx.Done():
			s.finish(types.FinishCancelled)
		case <-s.done:
		}
	}()
}

func (s *Session) load(ctx context.Context, p player.Player) {
	if err := p.Load(ctx, s.cfg.ManifestURL); err != nil {
		if errors.IsContextError(err) && ctx.Err() != nil {
			s.logger.Debug("Load abandoned", logging.F("error", err))
			return
		}
		loadErr := errors.ErrLoadFailed(s.cfg.ManifestURL, err)
		s.mu.Lock()
		s.loadErr = loadErr
		s.mu.Unlock()
		s.logger.Error("Load failed", logging.F("error", loadErr))
		return
	}

	s.mu.Lock()
	ok := s.transition(types.StatePlaying)
	if ok {
		s.playing.Add(1)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	defer s.playing.Done()
	if err := s.media.Play(); err != nil {
		s.logger.Warn("Play failed", logging.F("error", err))
	}
}

// finish runs teardown once: stop the timer, unbind telemetry, let an
// in-flight Play return, destroy the player, drop the reference, then
// publish the result.
func (s *Session) finish(reason types.FinishReason) {
	s.mu.Lock()
	last := s.state
	if !s.transition(types.StateFinished) {
		s.mu.Unlock()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.cancelLoad()
	p := s.player
	s.mu.Unlock()

	s.subs.Close()
	s.binding.Unbind()
	s.playing.Wait()
	if err := p.Destroy(); err != nil {
		s.logger.Warn("Destroy failed", logging.F("error", err))
	}

	s.mu.Lock()
	s.player = nil
	now := time.Now()
	s.result = types.Result{
		RunID:       s.cfg.RunID,
		ManifestURL: s.cfg.ManifestURL,
		Reason:      reason,
		LastState:   last,
		StartedAt:   s.startedAt,
		FinishedAt:  now,
		Duration:    now.Sub(s.startedAt),
	}
	if s.loadErr != nil {
		s.result.LoadError = s.loadErr.Error()
	}
	if s.playerErr != nil {
		s.result.PlayerError = s.playerErr.Error()
	}
	s.mu.Unlock()

	s.logger.Info("Scenario finished",
		logging.F("reason", string(reason)),
		logging.F("last_state", last),
		logging.F("duration", s.result.Duration))
	close(s.done)
}
