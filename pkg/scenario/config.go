package scenario

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/saveenergy/playertester/pkg/errors"
)

// FinishPolicy selects which playback signals, besides the timeout, end a
// session. The zero value leaves the timeout as the only authority.
type FinishPolicy uint8

const (
	FinishOnEnded FinishPolicy = 1 << iota
	FinishOnPlayerError
)

func (p FinishPolicy) Has(flag FinishPolicy) bool { return p&flag != 0 }

func (p FinishPolicy) String() string {
	var parts []string
	if p.Has(FinishOnEnded) {
		parts = append(parts, "ended")
	}
	if p.Has(FinishOnPlayerError) {
		parts = append(parts, "error")
	}
	if len(parts) == 0 {
		return "timeout"
	}
	return strings.Join(parts, ",")
}

// ParseFinishPolicy reads a comma list of "ended" and "error". An empty
// string or "timeout" means timeout only.
func ParseFinishPolicy(s string) (FinishPolicy, error) {
	var p FinishPolicy
	for _, part := range strings.Split(s, ",") {
		switch strings.TrimSpace(strings.ToLower(part)) {
		case "", "timeout":
		case "ended", "end":
			p |= FinishOnEnded
		case "error":
			p |= FinishOnPlayerError
		default:
			return 0, fmt.Errorf("unknown finish signal %q (want ended, error)", part)
		}
	}
	return p, nil
}

type Config struct {
	RunID        string
	ManifestURL  string
	Timeout      time.Duration
	LowLatency   bool
	FinishOn     FinishPolicy
	PollInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timeout:    30 * time.Second,
		LowLatency: true,
	}
}

func (c Config) Validate() error {
	if c.ManifestURL == "" {
		return errors.ErrInvalidConfig("manifest URL is required", nil)
	}
	if _, err := url.Parse(c.ManifestURL); err != nil {
		return errors.ErrInvalidConfig("manifest URL is malformed", err)
	}
	if c.Timeout < 0 {
		return errors.ErrInvalidConfig(fmt.Sprintf("timeout %s must not be negative", c.Timeout), nil)
	}
	if c.PollInterval < 0 {
		return errors.ErrInvalidConfig(fmt.Sprintf("poll interval %s must not be negative", c.PollInterval), nil)
	}
	return nil
}
