// Package service implements the ride lifecycle orchestration: intake,
// driver actions as conditional transitions, live location fan-out, and
// reconnect recovery for both sides.
package service

import (
	"ride-dispatch/internal/dispatch"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/rabbitmq"
	"ride-dispatch/internal/ports"
)

const producerName = "dispatch-service"

type rideService struct {
	logger   *logger.Logger
	uow      ports.UnitOfWork
	rides    ports.RideRepository
	drivers  ports.DriverRepository
	geo      ports.GeoIndex
	notifier ports.Notifier
	registry *dispatch.Registry

	// dispatcher is invoked on its own goroutine after the claiming
	// transaction commits.
	dispatcher ports.Dispatcher

	// pub is best effort; a nil publisher disables broker events.
	pub *rabbitmq.MQPublisher

	// maxOfferRadiusKM bounds which pending rides a reconnecting driver
	// is re-offered.
	maxOfferRadiusKM float64
}

var _ ports.RideService = (*rideService)(nil)

// NewRideService wires the ride service.
func NewRideService(
	log *logger.Logger,
	uow ports.UnitOfWork,
	rides ports.RideRepository,
	drivers ports.DriverRepository,
	geoIndex ports.GeoIndex,
	notifier ports.Notifier,
	registry *dispatch.Registry,
	dispatcher ports.Dispatcher,
	pub *rabbitmq.MQPublisher,
	maxOfferRadiusKM float64,
) ports.RideService {
	return &rideService{
		logger:           log,
		uow:              uow,
		rides:            rides,
		drivers:          drivers,
		geo:              geoIndex,
		notifier:         notifier,
		registry:         registry,
		dispatcher:       dispatcher,
		pub:              pub,
		maxOfferRadiusKM: maxOfferRadiusKM,
	}
}
