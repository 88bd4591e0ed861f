package types

// TimeRange is a buffered interval of media time, in seconds.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type TimeRanges []TimeRange

// BufferSize returns how many seconds are buffered ahead of position within
// the range that contains it. Zero when position is outside every range.
func (r TimeRanges) BufferSize(position float64) float64 {
	for _, tr := range r {
		if position >= tr.Start && position < tr.End {
			return tr.End - position
		}
	}
	return 0
}
