package ride

import (
	"errors"
	"strings"
)

// Status is a ride status as stored in the `rides.status` column.
// The values double as wire names, so they are matched verbatim.
type Status string

const (
	StatusRequested   Status = "requested"
	StatusAccepted    Status = "accepted"
	StatusArrived     Status = "arrived"
	StatusOnRide      Status = "onRide"
	StatusCompleted   Status = "completed"
	StatusNotApproved Status = "notApprove"
	StatusCancelled   Status = "cancelled"
)

var (
	ErrInvalidStatus = errors.New("invalid ride status")

	// ErrStaleStatus is returned when a conditional update matched no row,
	// i.e. another actor changed the ride first.
	ErrStaleStatus = errors.New("ride status changed concurrently")
)

// ParseStatus trims and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.TrimSpace(in))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed ride status constants.
func (status Status) Valid() bool {
	switch status {
	case StatusRequested, StatusAccepted, StatusArrived, StatusOnRide,
		StatusCompleted, StatusNotApproved, StatusCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// CanTransitionTo specifies if the status can transition to the next status.
func (status Status) CanTransitionTo(next Status) bool {
	switch status {
	case StatusRequested:
		return next == StatusAccepted || next == StatusNotApproved || next == StatusCancelled

	case StatusAccepted:
		// StatusRequested is the driver-cancel requeue path
		return next == StatusArrived || next == StatusRequested || next == StatusCancelled

	case StatusArrived:
		return next == StatusOnRide || next == StatusCancelled

	case StatusOnRide:
		return next == StatusCompleted || next == StatusRequested || next == StatusCancelled

	case StatusCompleted, StatusNotApproved, StatusCancelled:
		return false

	default:
		return false
	}
}

// Terminal indicates if the status is in a terminal state.
func (status Status) Terminal() bool {
	return status == StatusCompleted || status == StatusNotApproved || status == StatusCancelled
}

// Active reports whether a driver is currently attached and moving, which is
// when live location sharing with the passenger applies.
func (status Status) Active() bool {
	return status == StatusAccepted || status == StatusArrived || status == StatusOnRide
}
