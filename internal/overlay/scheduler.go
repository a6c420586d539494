package overlay

import (
	"context"
	"time"

	"github.com/rcrosshair/rcrosshair/internal/imgsource"
)

// presenter is the slice of the Controller the scheduler drives. It exists
// so the loop logic is testable without a compositor.
type presenter interface {
	present(frame imgsource.Frame) error
	awaitFrameDone(ctx context.Context) error
	isClosed() bool
	committedAt() time.Time
}

// scheduler drives the redraw cadence of an animated source: render, commit,
// wait for the compositor to consume the buffer, sleep out the remainder of
// the frame's duration, advance. The frame sequence restarts from the top
// when exhausted, forever.
type scheduler struct {
	p     presenter
	src   *imgsource.Source
	sleep func(ctx context.Context, d time.Duration) bool // swapped out in tests
}

func newScheduler(p presenter, src *imgsource.Source) *scheduler {
	return &scheduler{p: p, src: src, sleep: sleep}
}

// run loops until the context is canceled or the surface is closed. The
// first frame is already on screen when run starts; its commit time comes
// from the presenter, so the first sleep only covers what is left of the
// frame's duration.
func (s *scheduler) run(ctx context.Context) error {
	first := true
	for {
		for frame := range s.src.Frames() {
			if !first {
				if err := s.p.present(frame); err != nil {
					return err
				}
			}
			first = false

			if err := s.p.awaitFrameDone(ctx); err != nil {
				return err
			}
			if s.p.isClosed() || ctx.Err() != nil {
				return nil
			}
			if !s.sleep(ctx, remaining(frame.Duration, time.Since(s.p.committedAt()))) {
				return nil
			}
		}
	}
}

// remaining is the time still to wait for a frame after elapsed has already
// passed since its commit. Never negative.
func remaining(duration, elapsed time.Duration) time.Duration {
	if elapsed >= duration {
		return 0
	}
	return duration - elapsed
}

// sleep waits for d unless the context is canceled first; reports whether
// the full wait completed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
