package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"ride-dispatch/internal/general/logger"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []string
	done  chan struct{}
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, rideID string) {
	d.mu.Lock()
	d.calls = append(d.calls, rideID)
	d.mu.Unlock()
	if d.done != nil {
		d.done <- struct{}{}
	}
}

func (d *recordingDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func TestSweepClaimsAndLaunchesOrphans(t *testing.T) {
	orphan := requestedRide("orphan-1")
	orphan.Dispatching = false
	claimed := requestedRide("claimed-1") // Dispatching true, someone owns it

	store := newFakeStore(orphan, claimed)
	disp := &recordingDispatcher{done: make(chan struct{}, 4)}
	sweep := NewSweep(logger.New("test"), fakeUOW{}, store, disp, time.Minute)

	sweep.tick(context.Background())

	select {
	case <-disp.done:
	case <-time.After(time.Second):
		t.Fatal("sweep did not launch a coordinator for the orphan")
	}

	if got := disp.callCount(); got != 1 {
		t.Fatalf("dispatch launches = %d, want 1 (only the orphan)", got)
	}
	if !store.get("orphan-1").Dispatching {
		t.Error("orphan must be claimed before launch")
	}
}

func TestSweepSecondPassFindsNothing(t *testing.T) {
	orphan := requestedRide("orphan-1")
	orphan.Dispatching = false

	store := newFakeStore(orphan)
	disp := &recordingDispatcher{done: make(chan struct{}, 4)}
	sweep := NewSweep(logger.New("test"), fakeUOW{}, store, disp, time.Minute)

	sweep.tick(context.Background())
	<-disp.done
	sweep.tick(context.Background())

	// no second launch for a ride that is already claimed
	select {
	case <-disp.done:
		t.Fatal("second tick must not relaunch a claimed ride")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSweepRunStopsOnCancel(t *testing.T) {
	store := newFakeStore()
	sweep := NewSweep(logger.New("test"), fakeUOW{}, store, &recordingDispatcher{}, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweep.Run(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancel")
	}
}
