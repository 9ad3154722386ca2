package event

import "time"

// Backoff doubles Base per attempt, capped at Max. Attempt 1 waits Base.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	wait := b.Base
	for i := 1; i < attempt && (b.Max <= 0 || wait < b.Max); i++ {
		wait *= 2
	}
	if b.Max > 0 {
		return min(wait, b.Max)
	}
	return wait
}
