package dispatch

import (
	"context"
	"testing"
	"time"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/ports"
)

func testPolicy() Policy {
	return Policy{
		InitialRadiusKM:   2,
		RadiusIncrementKM: 2,
		MaxRadiusKM:       4,
		OfferWait:         5 * time.Millisecond,
		OverallDeadline:   60 * time.Millisecond,
		RetryBackoff:      time.Millisecond,
	}
}

func requestedRide(id string) *ride.Ride {
	return &ride.Ride{
		ID:          id,
		PassengerID: "passenger-1",
		Pickup:      geo.Point{Lat: 33.3, Lng: 44.3},
		Dropoff:     geo.Point{Lat: 33.4, Lng: 44.4},
		Fare:        ride.DefaultFare(),
		Status:      ride.StatusRequested,
		Dispatching: true,
	}
}

func newTestCoordinator(store *fakeStore, g *fakeGeo, n *fakeNotifier, p Policy) (*Coordinator, *Registry) {
	reg := NewRegistry()
	c := NewCoordinator(logger.New("test"), fakeUOW{}, store, g, n, reg, nil, p)
	return c, reg
}

func TestDispatchGivesUpWithNoDrivers(t *testing.T) {
	store := newFakeStore(requestedRide("ride-1"))
	notifier := newFakeNotifier()
	c, reg := newTestCoordinator(store, &fakeGeo{}, notifier, testPolicy())

	c.Dispatch(context.Background(), "ride-1")

	rd := store.get("ride-1")
	if rd.Status != ride.StatusNotApproved {
		t.Errorf("status = %s, want notApprove", rd.Status)
	}
	if store.notApprovedCalls != 1 {
		t.Errorf("notApprove writes = %d, want exactly 1", store.notApprovedCalls)
	}
	if !notifier.passengerSaw(contracts.EventRideNotApproved) {
		t.Error("passenger should be told the ride was not approved")
	}
	if !rd.Notified {
		t.Error("delivered notApprove should be recorded")
	}
	if rd.Dispatching {
		t.Error("dispatch claim must be released")
	}
	if reg.Count() != 0 {
		t.Error("registry entry must be released")
	}
}

func TestDispatchStopsWhenDriverAccepts(t *testing.T) {
	store := newFakeStore(requestedRide("ride-1"))
	g := &fakeGeo{candidates: []ports.DriverLocation{
		{DriverID: "driver-1", DistanceKM: 1},
	}}

	notifier := newFakeNotifier()
	notifier.onDriverOffer = func(driverID string) {
		// the driver accepts while the coordinator waits out the offer window
		_ = store.Assign(context.Background(), "ride-1", driverID)
	}

	p := testPolicy()
	p.OverallDeadline = time.Second
	c, reg := newTestCoordinator(store, g, notifier, p)

	done := make(chan struct{})
	go func() {
		c.Dispatch(context.Background(), "ride-1")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Dispatch did not return after acceptance")
	}

	rd := store.get("ride-1")
	if rd.Status != ride.StatusAccepted {
		t.Errorf("status = %s, want accepted", rd.Status)
	}
	if store.notApprovedCalls != 0 {
		t.Error("an accepted ride must never be marked notApprove")
	}
	if rd.Dispatching {
		t.Error("dispatch claim must be released")
	}
	if reg.Count() != 0 {
		t.Error("registry entry must be released")
	}
}

func TestDispatchOffersEachDriverOnce(t *testing.T) {
	store := newFakeStore(requestedRide("ride-1"))
	g := &fakeGeo{candidates: []ports.DriverLocation{
		{DriverID: "driver-1", DistanceKM: 1},
	}}
	notifier := newFakeNotifier() // driver never accepts

	c, _ := newTestCoordinator(store, g, notifier, testPolicy())
	c.Dispatch(context.Background(), "ride-1")

	offers := notifier.offersSent()
	if len(offers) != 1 {
		t.Errorf("offers to the same driver = %d, want 1", len(offers))
	}
	if store.get("ride-1").Status != ride.StatusNotApproved {
		t.Error("unanswered offers should end in notApprove once the search is exhausted")
	}
}

func TestDispatchEndsWhenRadiusExhausted(t *testing.T) {
	store := newFakeStore(requestedRide("ride-1"))
	notifier := newFakeNotifier()

	// the deadline is far out on purpose: sweeping the whole search area
	// without an acceptance must end the run on its own
	p := testPolicy()
	p.OverallDeadline = 10 * time.Second

	c, reg := newTestCoordinator(store, &fakeGeo{}, notifier, p)

	done := make(chan struct{})
	go func() {
		c.Dispatch(context.Background(), "ride-1")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Dispatch kept running after the max radius was swept")
	}

	rd := store.get("ride-1")
	if rd.Status != ride.StatusNotApproved {
		t.Errorf("status = %s, want notApprove", rd.Status)
	}
	if !notifier.passengerSaw(contracts.EventRideNotApproved) {
		t.Error("passenger should be told the ride was not approved")
	}
	if rd.Dispatching {
		t.Error("dispatch claim must be released")
	}
	if reg.Count() != 0 {
		t.Error("registry entry must be released")
	}
}

func TestDispatchFreesRegistryBeforeClaim(t *testing.T) {
	store := newFakeStore(requestedRide("ride-1"))
	notifier := newFakeNotifier()
	c, reg := newTestCoordinator(store, &fakeGeo{}, notifier, testPolicy())

	// a successor that re-claims the ride the moment the flag clears must
	// find the registry free, or it would bail out and strand the claim
	entriesAtClear := -1
	store.onClearDispatch = func(string) { entriesAtClear = reg.Count() }

	c.Dispatch(context.Background(), "ride-1")

	if entriesAtClear != 0 {
		t.Errorf("registry entries while the claim clears = %d, want 0", entriesAtClear)
	}
}

func TestDispatchSkipsOfflineDrivers(t *testing.T) {
	store := newFakeStore(requestedRide("ride-1"))
	g := &fakeGeo{candidates: []ports.DriverLocation{
		{DriverID: "gone-driver", DistanceKM: 1},
	}}
	notifier := newFakeNotifier()
	notifier.offline["gone-driver"] = true

	c, _ := newTestCoordinator(store, g, notifier, testPolicy())
	c.Dispatch(context.Background(), "ride-1")

	if got := len(notifier.offersSent()); got != 0 {
		t.Errorf("offers to offline driver = %d, want 0", got)
	}
}

func TestDispatchExpandsRadius(t *testing.T) {
	store := newFakeStore(requestedRide("ride-1"))
	// only reachable once the radius grows past the initial 2 km
	g := &fakeGeo{candidates: []ports.DriverLocation{
		{DriverID: "far-driver", DistanceKM: 3.5},
	}}

	notifier := newFakeNotifier()
	notifier.onDriverOffer = func(driverID string) {
		_ = store.Assign(context.Background(), "ride-1", driverID)
	}

	p := testPolicy()
	p.OverallDeadline = time.Second
	c, _ := newTestCoordinator(store, g, notifier, p)
	c.Dispatch(context.Background(), "ride-1")

	if store.get("ride-1").Status != ride.StatusAccepted {
		t.Error("driver beyond the initial radius should still be reached")
	}
}

func TestDispatchRefusesSecondRun(t *testing.T) {
	store := newFakeStore(requestedRide("ride-1"))
	notifier := newFakeNotifier()

	p := testPolicy()
	p.OverallDeadline = time.Second
	c, reg := newTestCoordinator(store, &fakeGeo{}, notifier, p)

	runCtx, release, err := reg.Start(context.Background(), "ride-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer release()
	_ = runCtx

	// a second Dispatch for the same ride must bail out immediately
	done := make(chan struct{})
	go func() {
		c.Dispatch(context.Background(), "ride-1")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("second Dispatch should return without running the loop")
	}
	if store.notApprovedCalls != 0 {
		t.Error("bailing out must not touch the ride")
	}
}

func TestDispatchSkipsNonRequestedRide(t *testing.T) {
	rd := requestedRide("ride-1")
	rd.Status = ride.StatusCancelled
	store := newFakeStore(rd)
	notifier := newFakeNotifier()

	c, _ := newTestCoordinator(store, &fakeGeo{}, notifier, testPolicy())
	c.Dispatch(context.Background(), "ride-1")

	if got := len(notifier.offersSent()); got != 0 {
		t.Errorf("offers for a cancelled ride = %d, want 0", got)
	}
	if store.get("ride-1").Dispatching {
		t.Error("claim should still be cleared on the skip path")
	}
}
