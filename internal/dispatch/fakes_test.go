package dispatch

import (
	"context"
	"sync"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/ports"
)

// fakeUOW runs the function directly; the fakes below do their own locking.
type fakeUOW struct{}

func (fakeUOW) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fakeStore is an in-memory ports.RideRepository mirroring the conditional
// update semantics of the real one.
type fakeStore struct {
	mu    sync.Mutex
	rides map[string]*ride.Ride

	notApprovedCalls int
	onClearDispatch  func(rideID string)
}

func newFakeStore(rides ...*ride.Ride) *fakeStore {
	s := &fakeStore{rides: make(map[string]*ride.Ride)}
	for _, rd := range rides {
		cp := *rd
		s.rides[rd.ID] = &cp
	}
	return s
}

func (s *fakeStore) get(id string) *ride.Ride {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rd, ok := s.rides[id]; ok {
		cp := *rd
		return &cp
	}
	return nil
}

func (s *fakeStore) Create(ctx context.Context, rd *ride.Ride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rd
	s.rides[rd.ID] = &cp
	return nil
}

func (s *fakeStore) GetByID(ctx context.Context, id string) (*ride.Ride, error) {
	return s.get(id), nil
}

func (s *fakeStore) GetActiveForDriver(ctx context.Context, driverID string) (*ride.Ride, error) {
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

func (s *fakeStore) ListUnnotified(ctx context.Context, passengerID string) ([]*ride.Ride, error) {
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

func (s *fakeStore) MarkNotified(ctx context.Context, rideID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rd, ok := s.rides[rideID]; ok {
		rd.Notified = true
	}
	return nil
}

func (s *fakeStore) Assign(ctx context.Context, rideID, driverID string) error {
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

func (s *fakeStore) Transition(ctx context.Context, rideID, driverID string, from, to ride.Status) error {
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

func (s *fakeStore) Requeue(ctx context.Context, rideID, driverID string) error {
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

func (s *fakeStore) MarkNotApproved(ctx context.Context, rideID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rd, ok := s.rides[rideID]
	if !ok || rd.Status != ride.StatusRequested {
		return ride.ErrStaleStatus
	}
	rd.Status = ride.StatusNotApproved
	rd.Dispatching = false
	rd.Notified = false
	s.notApprovedCalls++
	return nil
}

func (s *fakeStore) ClaimDispatch(ctx context.Context, rideID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rd, ok := s.rides[rideID]
	if !ok || rd.Status != ride.StatusRequested || rd.Dispatching {
		return false, nil
	}
	rd.Dispatching = true
	return true, nil
}

func (s *fakeStore) ClearDispatch(ctx context.Context, rideID string) error {
	s.mu.Lock()
	if rd, ok := s.rides[rideID]; ok {
		rd.Dispatching = false
	}
	hook := s.onClearDispatch
	s.mu.Unlock()

	if hook != nil {
		hook(rideID)
	}
	return nil
}

func (s *fakeStore) ListDispatchable(ctx context.Context, limit int) ([]*ride.Ride, error) {
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

// fakeGeo serves a fixed candidate list.
type fakeGeo struct {
	mu         sync.Mutex
	candidates []ports.DriverLocation
	err        error
}

func (g *fakeGeo) Update(ctx context.Context, driverID string, pt geo.Point) error { return nil }

func (g *fakeGeo) Nearby(ctx context.Context, origin geo.Point, radiusKM float64, limit int) ([]ports.DriverLocation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	var out []ports.DriverLocation
	for _, c := range g.candidates {
		if c.DistanceKM <= radiusKM {
			out = append(out, c)
		}
	}
	return out, nil
}

func (g *fakeGeo) Position(ctx context.Context, driverID string) (geo.Point, bool, error) {
	return geo.Point{}, false, nil
}

func (g *fakeGeo) Remove(ctx context.Context, driverID string) error { return nil }

// fakeNotifier records pushes and can react to an offer, e.g. by accepting
// the ride like a real driver would.
type fakeNotifier struct {
	mu sync.Mutex

	offline         map[string]bool
	driverEvents    []string
	passengerEvents []string
	offerTargets    []string

	onDriverOffer func(driverID string)
	driverAck     bool
	passengerAck  bool
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{driverAck: true, passengerAck: true, offline: make(map[string]bool)}
}

func (n *fakeNotifier) NotifyDriver(ctx context.Context, driverID, event string, data any) bool {
	n.mu.Lock()
	n.driverEvents = append(n.driverEvents, event)
	n.offerTargets = append(n.offerTargets, driverID)
	hook := n.onDriverOffer
	ack := n.driverAck
	n.mu.Unlock()

	if hook != nil {
		hook(driverID)
	}
	return ack
}

func (n *fakeNotifier) NotifyPassenger(ctx context.Context, passengerID, event string, data any) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.passengerEvents = append(n.passengerEvents, event)
	return n.passengerAck
}

func (n *fakeNotifier) IsDriverOnline(driverID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return !n.offline[driverID]
}

func (n *fakeNotifier) LinkRide(driverID, passengerID string) {}

func (n *fakeNotifier) UnlinkRide(driverID string) {}

func (n *fakeNotifier) SharedPassenger(driverID string) (string, bool) { return "", false }

func (n *fakeNotifier) offersSent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.offerTargets...)
}

func (n *fakeNotifier) passengerSaw(event string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.passengerEvents {
		if e == event {
			return true
		}
	}
	return false
}
