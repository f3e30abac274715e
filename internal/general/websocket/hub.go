package websocket

import (
	"context"
	"sync"
	"time"

	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/metrics"
	"ride-dispatch/internal/ports"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout   = 5 * time.Second
	wsCloseAckWindow = 2 * time.Second
	ctrlTimeout      = 5 * time.Second
	readDeadline     = 60 * time.Second
	pingInterval     = 30 * time.Second

	// minimum gap between accepted location updates per connection
	locationThrottle = 3 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub owns every live WebSocket connection. It is the presence registry (who
// is reachable right now), the notification bus (best-effort, at-most-once
// pushes), and the ride-sharing link table (driver -> passenger location
// routing). All state here is ephemeral and rebuilt from reconnects.
type Hub struct {
	logger *logger.Logger
	jwtMgr *jwt.Manager

	// svc is attached after construction; the service needs the hub for
	// notifications and the hub needs the service for inbound messages.
	svc ports.RideService

	writeLocks sync.Map // *websocket.Conn -> *sync.Mutex
	passengers sync.Map // passengerID -> *websocket.Conn
	drivers    sync.Map // driverID -> *websocket.Conn
	shares     sync.Map // driverID -> passengerID
}

var _ ports.Notifier = (*Hub)(nil)

// NewHub creates the connection hub.
func NewHub(logger *logger.Logger, jwtMgr *jwt.Manager) *Hub {
	return &Hub{logger: logger, jwtMgr: jwtMgr}
}

// AttachService wires the ride service in after both sides are constructed.
func (h *Hub) AttachService(svc ports.RideService) {
	h.svc = svc
}

// --- presence registry ---

// registerDriver stores the connection. A later register supersedes an
// earlier one: the stale socket is closed so its read loop unblocks.
func (h *Hub) registerDriver(driverID string, conn *websocket.Conn) {
	if prev, loaded := h.drivers.Swap(driverID, conn); loaded {
		if old, ok := prev.(*websocket.Conn); ok && old != conn {
			_ = old.Close()
		}
	} else {
		metrics.DriversOnline.Inc()
	}
}

// unregisterDriver removes the entry only when it still belongs to conn, so a
// superseded connection's teardown cannot evict its replacement.
func (h *Hub) unregisterDriver(driverID string, conn *websocket.Conn) {
	if h.drivers.CompareAndDelete(driverID, conn) {
		metrics.DriversOnline.Dec()
	}
}

func (h *Hub) registerPassenger(passengerID string, conn *websocket.Conn) {
	if prev, loaded := h.passengers.Swap(passengerID, conn); loaded {
		if old, ok := prev.(*websocket.Conn); ok && old != conn {
			_ = old.Close()
		}
	} else {
		metrics.PassengersOnline.Inc()
	}
}

func (h *Hub) unregisterPassenger(passengerID string, conn *websocket.Conn) {
	if h.passengers.CompareAndDelete(passengerID, conn) {
		metrics.PassengersOnline.Dec()
	}
}

// IsDriverOnline reports whether the driver has a live connection.
func (h *Hub) IsDriverOnline(driverID string) bool {
	_, ok := h.drivers.Load(driverID)
	return ok
}

// --- notification bus ---

// NotifyDriver pushes one event frame to the driver. The returned bool is
// delivery from this process's point of view: false means offline or a failed
// write, and nothing is queued or retried.
func (h *Hub) NotifyDriver(ctx context.Context, driverID, event string, data any) bool {
	v, ok := h.drivers.Load(driverID)
	if !ok {
		return false
	}
	conn := v.(*websocket.Conn)

	if err := h.writeJSON(conn, contracts.WSMessage{Type: event, Data: data}); err != nil {
		h.logger.Error(ctx, "ws_driver_notify_failed", "Failed to push event to driver", err,
			map[string]any{"driver_id": driverID, "event": event})
		return false
	}
	return true
}

// NotifyPassenger pushes one event frame to the passenger, same semantics as
// NotifyDriver.
func (h *Hub) NotifyPassenger(ctx context.Context, passengerID, event string, data any) bool {
	v, ok := h.passengers.Load(passengerID)
	if !ok {
		return false
	}
	conn := v.(*websocket.Conn)

	if err := h.writeJSON(conn, contracts.WSMessage{Type: event, Data: data}); err != nil {
		h.logger.Error(ctx, "ws_passenger_notify_failed", "Failed to push event to passenger", err,
			map[string]any{"passenger_id": passengerID, "event": event})
		return false
	}
	return true
}

// --- ride sharing links ---

// LinkRide routes the driver's live locations to the passenger for the
// duration of an active ride.
func (h *Hub) LinkRide(driverID, passengerID string) {
	h.shares.Store(driverID, passengerID)
}

// UnlinkRide drops the link. Idempotent.
func (h *Hub) UnlinkRide(driverID string) {
	h.shares.Delete(driverID)
}

// SharedPassenger returns the passenger currently linked to the driver.
func (h *Hub) SharedPassenger(driverID string) (string, bool) {
	v, ok := h.shares.Load(driverID)
	if !ok {
		return "", false
	}
	return v.(string), true
}
