package types

import (
	"fmt"
	"time"
)

// State is the lifecycle position of a scenario session.
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	st, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

func ParseState(v string) (State, error) {
	switch v {
	case "idle":
		return StateIdle, nil
	case "loading":
		return StateLoading, nil
	case "playing":
		return StatePlaying, nil
	case "finished":
		return StateFinished, nil
	default:
		return StateIdle, fmt.Errorf("unknown state %q", v)
	}
}

type FinishReason string

const (
	FinishTimeout   FinishReason = "timeout"
	FinishEnded     FinishReason = "ended"
	FinishError     FinishReason = "error"
	FinishCancelled FinishReason = "cancelled"
)

// Result is produced exactly once per scenario session. LastState is the
// state the session was in when it finished.
type Result struct {
	RunID       string        `json:"run_id"`
	ManifestURL string        `json:"manifest_url"`
	Reason      FinishReason  `json:"reason"`
	LastState   State         `json:"last_state"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Duration    time.Duration `json:"duration"`
	LoadError   string        `json:"load_error,omitempty"`
	PlayerError string        `json:"player_error,omitempty"`
}

// ReachedPlaying reports whether the manifest loaded before the session ended.
func (r Result) ReachedPlaying() bool {
	return r.LastState == StatePlaying
}
