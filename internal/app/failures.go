package app

// DefaultWarnAfter is the number of consecutive failed ticks before the
// operator is warned.
const DefaultWarnAfter = 10

// maxWarnGap caps how far apart repeated warnings for one outage get.
const maxWarnGap = 600

// failureTracker counts consecutive transient read failures and decides
// when a persistent failure deserves a visible warning. Warnings back off
// exponentially: after warnAfter failures, then 2x, 4x, ... with the gap
// capped at maxWarnGap ticks.
type failureTracker struct {
	warnAfter   int
	nextWarn    int
	consecutive int
	total       int64
}

func newFailureTracker(warnAfter int) *failureTracker {
	if warnAfter <= 0 {
		warnAfter = DefaultWarnAfter
	}
	return &failureTracker{
		warnAfter: warnAfter,
		nextWarn:  warnAfter,
	}
}

// Failure records a failed tick. It returns the current streak length and
// whether a warning is due.
func (f *failureTracker) Failure() (consecutive int, warn bool) {
	f.consecutive++
	f.total++
	if f.consecutive < f.nextWarn {
		return f.consecutive, false
	}
	gap := f.nextWarn
	if gap > maxWarnGap {
		gap = maxWarnGap
	}
	f.nextWarn += gap
	return f.consecutive, true
}

// Success ends a streak and returns its length if a warning was issued for it.
func (f *failureTracker) Success() (recoveredAfter int) {
	if f.consecutive >= f.warnAfter {
		recoveredAfter = f.consecutive
	}
	f.consecutive = 0
	f.nextWarn = f.warnAfter
	return recoveredAfter
}

// Total returns the number of failed ticks over the whole run.
func (f *failureTracker) Total() int64 {
	return f.total
}
