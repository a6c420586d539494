package overlay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rcrosshair/rcrosshair/internal/imgsource"
)

// loopPresenter is a presenter that records which frames were presented.
// Frames are identified by their first pixel byte.
type loopPresenter struct {
	presents   []byte
	waits      int
	closeAfter int // report closed once this many awaitFrameDone calls happened; 0 = never
	presentErr error
	commit     time.Time
}

func (p *loopPresenter) present(f imgsource.Frame) error {
	if p.presentErr != nil {
		return p.presentErr
	}
	p.presents = append(p.presents, f.Pix[0])
	p.commit = time.Now()
	return nil
}

func (p *loopPresenter) awaitFrameDone(context.Context) error {
	p.waits++
	return nil
}

func (p *loopPresenter) isClosed() bool {
	return p.closeAfter > 0 && p.waits >= p.closeAfter
}

func (p *loopPresenter) committedAt() time.Time { return p.commit }

func testSource(durations ...time.Duration) *imgsource.Source {
	frames := make([]imgsource.Frame, len(durations))
	for i, d := range durations {
		frames[i] = imgsource.Frame{Pix: []byte{byte(i + 1), 0, 0, 0}, Duration: d}
	}
	return imgsource.New(1, 1, frames)
}

func TestScheduler_CyclicFrameOrder(t *testing.T) {
	src := testSource(30*time.Millisecond, 50*time.Millisecond, 20*time.Millisecond)
	p := &loopPresenter{closeAfter: 7}

	s := newScheduler(p, src)
	s.sleep = func(context.Context, time.Duration) bool { return true }

	if err := s.run(context.Background()); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	// The first frame is on screen before the loop starts, so presents begin
	// at frame 2 and wrap around: 2 3 1 2 3 1.
	want := []byte{2, 3, 1, 2, 3, 1}
	if len(p.presents) != len(want) {
		t.Fatalf("presented %d frames (%v), want %d", len(p.presents), p.presents, len(want))
	}
	for i := range want {
		if p.presents[i] != want[i] {
			t.Errorf("presents[%d] = %d, want %d", i, p.presents[i], want[i])
		}
	}
}

func TestScheduler_SleepBudgetCoversFrameDurations(t *testing.T) {
	durations := []time.Duration{30 * time.Millisecond, 50 * time.Millisecond, 20 * time.Millisecond}
	src := testSource(durations...)
	// Closing on the 4th wait stops the loop right after the first full
	// cycle of sleeps.
	p := &loopPresenter{closeAfter: 4, commit: time.Now()}

	var slept []time.Duration
	s := newScheduler(p, src)
	s.sleep = func(_ context.Context, d time.Duration) bool {
		slept = append(slept, d)
		return true
	}

	if err := s.run(context.Background()); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	if len(slept) != len(durations) {
		t.Fatalf("slept %d times, want %d", len(slept), len(durations))
	}
	var total, want time.Duration
	for i, d := range durations {
		if slept[i] > d {
			t.Errorf("sleep[%d] = %v, exceeds frame duration %v", i, slept[i], d)
		}
		total += slept[i]
		want += d
	}
	// awaitFrameDone returns instantly here, so only scheduling overhead
	// separates the slept total from the frame duration total.
	if want-total > 20*time.Millisecond {
		t.Errorf("total sleep = %v, want within one quantum of %v", total, want)
	}
}

func TestScheduler_FirstSleepCountsFromInitialCommit(t *testing.T) {
	src := testSource(30*time.Millisecond, 30*time.Millisecond)
	// The first frame was committed 20ms before the loop starts.
	p := &loopPresenter{closeAfter: 2, commit: time.Now().Add(-20 * time.Millisecond)}

	var slept []time.Duration
	s := newScheduler(p, src)
	s.sleep = func(_ context.Context, d time.Duration) bool {
		slept = append(slept, d)
		return true
	}

	if err := s.run(context.Background()); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	if len(slept) == 0 {
		t.Fatal("scheduler never slept")
	}
	// 30ms duration minus the 20ms already on screen leaves at most ~10ms.
	if slept[0] > 12*time.Millisecond {
		t.Errorf("first sleep = %v, want at most ~10ms", slept[0])
	}
}

func TestScheduler_StopsWhenSleepCanceled(t *testing.T) {
	src := testSource(time.Second, time.Second)
	p := &loopPresenter{}

	s := newScheduler(p, src)
	s.sleep = func(context.Context, time.Duration) bool { return false }

	if err := s.run(context.Background()); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if len(p.presents) != 0 {
		t.Errorf("presented %d frames after cancellation, want 0", len(p.presents))
	}
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	src := testSource(time.Millisecond, time.Millisecond)
	p := &loopPresenter{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newScheduler(p, src)
	if err := s.run(ctx); err != nil {
		t.Fatalf("run() error = %v", err)
	}
}

func TestScheduler_PropagatesPresentError(t *testing.T) {
	src := testSource(time.Millisecond, time.Millisecond)
	wantErr := errors.New("attach failed")
	p := &loopPresenter{presentErr: wantErr}

	s := newScheduler(p, src)
	s.sleep = func(context.Context, time.Duration) bool { return true }

	if err := s.run(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("run() error = %v, want %v", err, wantErr)
	}
}

func TestRemaining(t *testing.T) {
	tests := []struct {
		name              string
		duration, elapsed time.Duration
		want              time.Duration
	}{
		{"nothing elapsed", 100 * time.Millisecond, 0, 100 * time.Millisecond},
		{"partially elapsed", 100 * time.Millisecond, 40 * time.Millisecond, 60 * time.Millisecond},
		{"fully elapsed", 100 * time.Millisecond, 100 * time.Millisecond, 0},
		{"over-elapsed never negative", 100 * time.Millisecond, 250 * time.Millisecond, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := remaining(tt.duration, tt.elapsed); got != tt.want {
				t.Errorf("remaining(%v, %v) = %v, want %v", tt.duration, tt.elapsed, got, tt.want)
			}
		})
	}
}

func TestSleep_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if sleep(ctx, time.Second) {
		t.Error("sleep() = true on canceled context, want false")
	}
}

func TestSleep_ZeroDuration(t *testing.T) {
	if !sleep(context.Background(), 0) {
		t.Error("sleep(0) = false, want true")
	}
}
