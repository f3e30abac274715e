package contracts

// Exchanges
const (
	ExchangeRideTopic      = "ride_topic"
	ExchangeLocationFanout = "location_fanout"
)

// Queues
const (
	QueueRideStatus      = "ride_status"
	QueueLocationUpdates = "location_updates"
)

// Routing patterns
const (
	RouteRideStatusPrefix = "ride.status." // {status}
)

// WebSocket event names pushed to drivers.
const (
	EventNewRide          = "newRide"
	EventRestoreRide      = "restoreRide"
	EventRideStatusUpdate = "rideStatusUpdate"
	EventRideStarted      = "rideStarted"
	EventRideError        = "rideError"
)

// WebSocket event names pushed to passengers.
const (
	EventRideAccepted         = "rideAccepted"
	EventDriverArrived        = "driverArrived"
	EventRideCompleted        = "rideCompleted"
	EventRideNotApproved      = "rideNotApproved"
	EventRideCanceled         = "rideCanceled"
	EventDriverLocationUpdate = "driverLocationUpdate"
)

// WebSocket message types accepted from drivers.
const (
	MsgUpdateLocation = "update_location"
	MsgAcceptRide     = "accept_ride"
	MsgCancelRide     = "cancel_ride"
	MsgArrived        = "arrived"
	MsgStartRide      = "start_ride"
	MsgEndRide        = "end_ride"
)

// WebSocket message types accepted from passengers.
const (
	MsgRequestRide = "request_ride"
)
