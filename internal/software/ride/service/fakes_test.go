package service

import (
	"context"
	"fmt"
	"sync"

	"ride-dispatch/internal/domain/driver"
	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/ports"
)

type fakeUOW struct{}

func (fakeUOW) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fakeRides mirrors the conditional update semantics of the SQL repository.
type fakeRides struct {
	mu    sync.Mutex
	seq   int
	rides map[string]*ride.Ride
}

func newFakeRides(rides ...*ride.Ride) *fakeRides {
	s := &fakeRides{rides: make(map[string]*ride.Ride)}
	for _, rd := range rides {
		cp := *rd
		s.rides[rd.ID] = &cp
	}
	return s
}

func (s *fakeRides) get(id string) *ride.Ride {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rd, ok := s.rides[id]; ok {
		cp := *rd
		return &cp
	}
	return nil
}

func (s *fakeRides) Create(ctx context.Context, rd *ride.Ride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rd.ID == "" {
		s.seq++
		rd.ID = fmt.Sprintf("ride-%d", s.seq)
	}
	cp := *rd
	s.rides[rd.ID] = &cp
	return nil
}

func (s *fakeRides) GetByID(ctx context.Context, id string) (*ride.Ride, error) {
	return s.get(id), nil
}

func (s *fakeRides) GetActiveForDriver(ctx context.Context, driverID string) (*ride.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rd := range s.rides {
		if rd.OwnedBy(driverID) && rd.Status.Active() {
			cp := *rd
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeRides) ListUnnotified(ctx context.Context, passengerID string) ([]*ride.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ride.Ride
	for _, rd := range s.rides {
		if rd.PassengerID == passengerID && !rd.Notified && rd.Status != ride.StatusRequested {
			cp := *rd
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeRides) MarkNotified(ctx context.Context, rideID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rd, ok := s.rides[rideID]; ok {
		rd.Notified = true
	}
	return nil
}

func (s *fakeRides) Assign(ctx context.Context, rideID, driverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rd, ok := s.rides[rideID]
	if !ok || rd.Status != ride.StatusRequested || rd.DriverID != nil {
		return ride.ErrStaleStatus
	}
	rd.DriverID = &driverID
	rd.Status = ride.StatusAccepted
	rd.Notified = false
	return nil
}

func (s *fakeRides) Transition(ctx context.Context, rideID, driverID string, from, to ride.Status) error {
	if !from.CanTransitionTo(to) {
		return ride.ErrInvalidStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rd, ok := s.rides[rideID]
	if !ok || !rd.OwnedBy(driverID) || rd.Status != from {
		return ride.ErrStaleStatus
	}
	rd.Status = to
	rd.Notified = false
	return nil
}

func (s *fakeRides) Requeue(ctx context.Context, rideID, driverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rd, ok := s.rides[rideID]
	if !ok || !rd.OwnedBy(driverID) ||
		(rd.Status != ride.StatusAccepted && rd.Status != ride.StatusOnRide) {
		return ride.ErrStaleStatus
	}
	rd.Status = ride.StatusRequested
	rd.DriverID = nil
	rd.Dispatching = false
	rd.Notified = false
	return nil
}

func (s *fakeRides) MarkNotApproved(ctx context.Context, rideID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rd, ok := s.rides[rideID]
	if !ok || rd.Status != ride.StatusRequested {
		return ride.ErrStaleStatus
	}
	rd.Status = ride.StatusNotApproved
	rd.Dispatching = false
	rd.Notified = false
	return nil
}

func (s *fakeRides) ClaimDispatch(ctx context.Context, rideID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rd, ok := s.rides[rideID]
	if !ok || rd.Status != ride.StatusRequested || rd.Dispatching {
		return false, nil
	}
	rd.Dispatching = true
	return true, nil
}

func (s *fakeRides) ClearDispatch(ctx context.Context, rideID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rd, ok := s.rides[rideID]; ok {
		rd.Dispatching = false
	}
	return nil
}

func (s *fakeRides) ListDispatchable(ctx context.Context, limit int) ([]*ride.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ride.Ride
	for _, rd := range s.rides {
		if rd.Status == ride.StatusRequested && !rd.Dispatching {
			cp := *rd
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type fakeDrivers struct {
	profiles map[string]*driver.Profile
}

func (d *fakeDrivers) GetProfile(ctx context.Context, driverID string) (*driver.Profile, error) {
	if d.profiles == nil {
		return nil, nil
	}
	return d.profiles[driverID], nil
}

type fakeGeo struct {
	mu        sync.Mutex
	positions map[string]geo.Point
	removed   []string
}

func newFakeGeo() *fakeGeo {
	return &fakeGeo{positions: make(map[string]geo.Point)}
}

func (g *fakeGeo) Update(ctx context.Context, driverID string, pt geo.Point) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.positions[driverID] = pt
	return nil
}

func (g *fakeGeo) Nearby(ctx context.Context, origin geo.Point, radiusKM float64, limit int) ([]ports.DriverLocation, error) {
	return nil, nil
}

func (g *fakeGeo) Position(ctx context.Context, driverID string) (geo.Point, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	pt, ok := g.positions[driverID]
	return pt, ok, nil
}

func (g *fakeGeo) Remove(ctx context.Context, driverID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.positions, driverID)
	g.removed = append(g.removed, driverID)
	return nil
}

type pushedEvent struct {
	target string
	event  string
	data   any
}

type fakeNotifier struct {
	mu sync.Mutex

	driverPushes    []pushedEvent
	passengerPushes []pushedEvent
	links           map[string]string

	driverAck    bool
	passengerAck bool
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{links: make(map[string]string), driverAck: true, passengerAck: true}
}

func (n *fakeNotifier) NotifyDriver(ctx context.Context, driverID, event string, data any) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.driverPushes = append(n.driverPushes, pushedEvent{driverID, event, data})
	return n.driverAck
}

func (n *fakeNotifier) NotifyPassenger(ctx context.Context, passengerID, event string, data any) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.passengerPushes = append(n.passengerPushes, pushedEvent{passengerID, event, data})
	return n.passengerAck
}

func (n *fakeNotifier) IsDriverOnline(driverID string) bool { return true }

func (n *fakeNotifier) LinkRide(driverID, passengerID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.links[driverID] = passengerID
}

func (n *fakeNotifier) UnlinkRide(driverID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.links, driverID)
}

func (n *fakeNotifier) SharedPassenger(driverID string) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	pid, ok := n.links[driverID]
	return pid, ok
}

func (n *fakeNotifier) passengerEvents() []pushedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]pushedEvent(nil), n.passengerPushes...)
}

func (n *fakeNotifier) driverEvents() []pushedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]pushedEvent(nil), n.driverPushes...)
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []string
	done  chan string
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, rideID string) {
	d.mu.Lock()
	d.calls = append(d.calls, rideID)
	d.mu.Unlock()
	if d.done != nil {
		d.done <- rideID
	}
}
