package archive

import (
	"context"
	"time"
)

// MidnightScheduler runs a job once at start, again at the next UTC midnight
// and every 24 hours after that.
type MidnightScheduler struct {
	Job func(ctx context.Context)
	Now func() time.Time
}

// Start runs the schedule in a goroutine until ctx is done.
func (m *MidnightScheduler) Start(ctx context.Context) {
	go m.run(ctx)
}

func (m *MidnightScheduler) run(ctx context.Context) {
	// Run immediately once at startup
	m.Job(ctx)

	// Wait until next UTC midnight
	wait := time.NewTimer(untilMidnight(m.now()))
	defer wait.Stop()
	select {
	case <-ctx.Done():
		return
	case <-wait.C:
	}

	// Then run once every 24 hours
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		m.Job(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *MidnightScheduler) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// untilMidnight returns the time left until the next UTC midnight after now.
func untilMidnight(now time.Time) time.Duration {
	now = now.UTC()
	next := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	return next.Sub(now)
}
