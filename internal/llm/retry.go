package llm

import "time"

// RetryPolicy bounds how hard Client tries one clustering prompt.
// A run makes at most one completion call, so the wait doubles from
// FirstWait without jitter.
type RetryPolicy struct {
	Attempts  int
	FirstWait time.Duration
	MaxWait   time.Duration
}

// DefaultRetryPolicy is three attempts waiting 2s then 4s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, FirstWait: 2 * time.Second, MaxWait: 30 * time.Second}
}

// attempts is at least one.
func (p RetryPolicy) attempts() int {
	return max(p.Attempts, 1)
}

// wait returns the pause after failed attempt n (1-based).
func (p RetryPolicy) wait(n int) time.Duration {
	d := p.FirstWait
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxWait > 0 && d >= p.MaxWait {
			return p.MaxWait
		}
	}
	if p.MaxWait > 0 && d > p.MaxWait {
		return p.MaxWait
	}
	return d
}
