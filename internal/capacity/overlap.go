package capacity

import "time"

// Window is a slot's occupied interval together with its buffers in minutes.
type Window struct {
	ID           string
	Start        time.Time
	End          time.Time
	BufferBefore int
	BufferAfter  int
}

// Blocked returns the interval the window holds once buffers are applied.
func (w Window) Blocked() (time.Time, time.Time) {
	start := w.Start.Add(-time.Duration(max(w.BufferBefore, 0)) * time.Minute)
	end := w.End.Add(time.Duration(max(w.BufferAfter, 0)) * time.Minute)
	return start, end
}

// Overlap details an existing window that collides with a candidate.
type Overlap struct {
	WithID string
	Start  time.Time
	End    time.Time
}

// DetectOverlaps returns the existing windows whose buffered interval
// intersects the candidate's. Touching intervals do not overlap and the
// candidate never conflicts with a window sharing its ID.
func DetectOverlaps(existing []Window, candidate Window) []Overlap {
	candidateStart, candidateEnd := candidate.Blocked()
	var overlaps []Overlap
	for _, other := range existing {
		if candidate.ID != "" && other.ID == candidate.ID {
			continue
		}
		otherStart, otherEnd := other.Blocked()
		if candidateStart.Before(otherEnd) && otherStart.Before(candidateEnd) {
			overlaps = append(overlaps, Overlap{WithID: other.ID, Start: other.Start, End: other.End})
		}
	}
	return overlaps
}
