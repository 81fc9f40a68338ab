package orchestrator

import "time"

// Attempt is one historical scrape attempt as external reporting reads
// it back from storage.
type Attempt struct {
	At     time.Time
	Failed bool
}

// CountedFailures computes the consecutive-failure streak ending at the
// most recent attempt, honoring the health-reset marker: attempts at or
// before the marker are ignored entirely. Reporting uses this; the
// orchestrator itself only maintains the live counter and the marker.
func CountedFailures(attempts []Attempt, resetAt *time.Time) int {
	count := 0
	for i := len(attempts) - 1; i >= 0; i-- {
		a := attempts[i]
		if resetAt != nil && !a.At.After(*resetAt) {
			break
		}
		if !a.Failed {
			break
		}
		count++
	}
	return count
}
