package ride

import (
	"errors"
	"testing"

	"ride-dispatch/internal/domain/geo"
)

func TestParseStatus(t *testing.T) {
	if st, err := ParseStatus("  onRide "); err != nil || st != StatusOnRide {
		t.Errorf("ParseStatus(onRide) = %v, %v", st, err)
	}
	if _, err := ParseStatus("ONRIDE"); !errors.Is(err, ErrInvalidStatus) {
		t.Error("status matching must be exact, not case-folded")
	}
	if _, err := ParseStatus("finished"); !errors.Is(err, ErrInvalidStatus) {
		t.Error("unknown status should be rejected")
	}
}

func TestCanTransitionTo(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusRequested, StatusAccepted},
		{StatusRequested, StatusNotApproved},
		{StatusRequested, StatusCancelled},
		{StatusAccepted, StatusArrived},
		{StatusAccepted, StatusRequested}, // driver cancel requeue
		{StatusArrived, StatusOnRide},
		{StatusOnRide, StatusCompleted},
		{StatusOnRide, StatusRequested},
	}
	for _, tc := range allowed {
		if !tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to Status }{
		{StatusRequested, StatusOnRide},
		{StatusRequested, StatusCompleted},
		{StatusAccepted, StatusCompleted},
		{StatusArrived, StatusRequested},
		{StatusCompleted, StatusRequested},
		{StatusNotApproved, StatusAccepted},
		{StatusCancelled, StatusRequested},
	}
	for _, tc := range denied {
		if tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%s -> %s should be denied", tc.from, tc.to)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, st := range []Status{StatusCompleted, StatusNotApproved, StatusCancelled} {
		if !st.Terminal() {
			t.Errorf("%s should be terminal", st)
		}
		for _, next := range []Status{StatusRequested, StatusAccepted, StatusArrived, StatusOnRide, StatusCompleted} {
			if st.CanTransitionTo(next) {
				t.Errorf("terminal %s must not transition to %s", st, next)
			}
		}
	}
}

func TestNewAppliesDefaultFare(t *testing.T) {
	pickup := geo.Point{Lat: 33.3, Lng: 44.3}
	dropoff := geo.Point{Lat: 33.4, Lng: 44.4}

	rd, err := New("passenger-1", pickup, dropoff, 5, 12, Fare{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if rd.Fare != DefaultFare() {
		t.Errorf("fare = %+v, want default %+v", rd.Fare, DefaultFare())
	}
	if rd.Status != StatusRequested {
		t.Errorf("status = %s, want requested", rd.Status)
	}

	rd, err = New("passenger-1", pickup, dropoff, 5, 12, Fare{Amount: 9500})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if rd.Fare.Amount != 9500 || rd.Fare.Currency != "IQD" {
		t.Errorf("fare = %+v, want 9500 IQD", rd.Fare)
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	pickup := geo.Point{Lat: 33.3, Lng: 44.3}
	dropoff := geo.Point{Lat: 33.4, Lng: 44.4}

	if _, err := New("", pickup, dropoff, 5, 12, Fare{}); !errors.Is(err, ErrInvalidRide) {
		t.Error("empty passenger id should be rejected")
	}
	if _, err := New("p", geo.Point{Lat: 99, Lng: 0}, dropoff, 5, 12, Fare{}); !errors.Is(err, geo.ErrInvalidCoordinates) {
		t.Error("invalid pickup should be rejected")
	}
	if _, err := New("p", pickup, dropoff, -1, 12, Fare{}); !errors.Is(err, ErrInvalidRide) {
		t.Error("negative distance should be rejected")
	}
}
