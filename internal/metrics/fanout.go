package metrics

import (
	"github.com/saveenergy/playertester/pkg/player"
	"github.com/saveenergy/playertester/pkg/types"
)

// Fanout forwards each sample to every sink, in order. Nil sinks are skipped.
type Fanout []player.Sink

func NewFanout(sinks ...player.Sink) Fanout {
	out := make(Fanout, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (f Fanout) RegisterEvent(label types.Label, value float64) {
	for _, s := range f {
		s.RegisterEvent(label, value)
	}
}
