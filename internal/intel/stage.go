package intel

import (
	"context"
	"time"
)

// Stage label values used in logs and metrics.
const (
	StageClassify = "classify"
	StageAssess   = "assess"
)

// DefaultPacing is the advisory delay inserted between requests to reduce
// the chance of rate limiting. Not a correctness requirement.
const DefaultPacing = 500 * time.Millisecond

// SleepFunc pauses for d or until ctx is done. Injectable so stage and
// retry timing is testable without real delays.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Wait is the real-time SleepFunc.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RunSummary is the outcome of one stage run.
type RunSummary struct {
	Organizations int
	Processed     int
	Succeeded     int
	Failed        int
}

func (s *RunSummary) add(o RunSummary) {
	s.Organizations += o.Organizations
	s.Processed += o.Processed
	s.Succeeded += o.Succeeded
	s.Failed += o.Failed
}
