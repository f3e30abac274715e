package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/jwt"

	"github.com/gorilla/websocket"
)

// ConnectDriver handles WebSocket connections from drivers with first-frame
// JWT auth.
func (h *Hub) ConnectDriver(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return
	}
	defer conn.Close()
	defer h.writeLocks.Delete(conn)

	conn.SetReadLimit(1 << 20) // 1 MiB
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		h.logger.Error(r.Context(), "ws_set_deadline_failed", "Failed to set initial read deadline", err, nil)
		return
	}

	// first frame must be the auth message
	msgType, firstFrame, err := conn.ReadMessage()
	if err != nil {
		h.logger.Error(r.Context(), "ws_auth_read_failed", "Client did not authenticate in time", err, nil)
		return
	}
	if msgType != websocket.TextMessage {
		h.sendAuthError(conn, "auth message must be in text format")
		return
	}

	res, err := jwt.ValidateWSAuth(firstFrame, h.jwtMgr, user.RoleDriver)
	if err != nil {
		h.logger.Error(r.Context(), "ws_auth_failed", "Invalid auth message or token", err, nil)
		h.sendAuthError(conn, "authentication failed: invalid token")
		return
	}

	// path param must match the subject in claims
	if drvID := r.PathValue("driver_id"); drvID != "" && drvID != res.Claims.Subject {
		h.logger.Error(r.Context(), "ws_auth_failed", "Driver ID mismatch", nil, map[string]any{
			"path_driver_id": drvID,
			"token_subject":  res.Claims.Subject,
		})
		h.sendAuthError(conn, "driver ID mismatch")
		return
	}
	driverID := res.Claims.Subject

	if err := h.sendAuthSuccess(conn, "driver_id", driverID); err != nil {
		h.logger.Error(r.Context(), "ws_auth_success_failed", "Failed to send auth success message", err, nil)
		return
	}

	h.logger.Info(r.Context(), "ws_connected", "Driver WebSocket connected",
		map[string]any{"driver_id": driverID})

	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(_ string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go h.pingLoop(conn, stopPing)

	h.registerDriver(driverID, conn)
	defer h.unregisterDriver(driverID, conn)

	// restore an in-flight ride or re-offer nearby pending ones
	if err := h.svc.SyncDriver(r.Context(), driverID); err != nil {
		h.logger.Error(r.Context(), "driver_sync_failed", "Failed to sync driver state on connect", err,
			map[string]any{"driver_id": driverID})
	}

	var lastLocAt time.Time

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error(r.Context(), "ws_unexpected_close", "Driver connection closed unexpectedly", err,
					map[string]any{"driver_id": driverID})
			} else {
				h.logger.Info(r.Context(), "ws_connection_closed", "Driver connection closed",
					map[string]any{"driver_id": driverID})
				h.wsWriteClose(conn, websocket.CloseNormalClosure, "bye")
			}
			break
		}

		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.sendError(conn, "bad json")
			continue
		}

		switch msg.Type {
		case contracts.MsgUpdateLocation:
			h.handleDriverLocation(r.Context(), conn, driverID, msg.Data, &lastLocAt)

		case contracts.MsgAcceptRide, contracts.MsgCancelRide, contracts.MsgArrived,
			contracts.MsgStartRide, contracts.MsgEndRide:
			h.handleDriverRideAction(r.Context(), conn, driverID, msg.Type, msg.Data)

		default:
			h.sendError(conn, "unknown message type")
		}
	}
}

// handleDriverLocation applies the per-connection throttle and forwards the
// position to the service.
func (h *Hub) handleDriverLocation(ctx context.Context, conn *websocket.Conn, driverID string, data json.RawMessage, lastLocAt *time.Time) {
	var in contracts.DriverLocationPayload
	if err := json.Unmarshal(data, &in); err != nil {
		h.sendError(conn, "bad location payload")
		return
	}

	if time.Since(*lastLocAt) < locationThrottle {
		return
	}

	pt, err := geo.New(in.Latitude, in.Longitude)
	if err != nil {
		h.sendError(conn, "invalid coordinates")
		return
	}

	if err := h.svc.UpdateDriverLocation(ctx, driverID, pt); err != nil {
		h.logger.Error(ctx, "location_update_failed", "Failed to process driver location", err,
			map[string]any{"driver_id": driverID})
		return
	}
	*lastLocAt = time.Now()
}

// handleDriverRideAction routes accept/cancel/arrived/start/end to the
// service and acks or reports the outcome on this connection.
func (h *Hub) handleDriverRideAction(ctx context.Context, conn *websocket.Conn, driverID, msgType string, data json.RawMessage) {
	var in contracts.DriverRideActionPayload
	if err := json.Unmarshal(data, &in); err != nil || in.RideID == "" {
		h.sendError(conn, "bad ride action payload")
		return
	}

	ctx = h.logger.WithRideID(ctx, in.RideID)

	var err error
	ack := contracts.DriverActionAck{RideID: in.RideID}

	switch msgType {
	case contracts.MsgAcceptRide:
		var rd *ride.Ride
		if rd, err = h.svc.AcceptRide(ctx, driverID, in.RideID); err == nil {
			ack.Status = rd.Status.String()
		}
	case contracts.MsgCancelRide:
		if err = h.svc.CancelRide(ctx, driverID, in.RideID); err == nil {
			ack.Status = ride.StatusRequested.String()
		}
	case contracts.MsgArrived:
		if err = h.svc.MarkArrived(ctx, driverID, in.RideID); err == nil {
			ack.Status = ride.StatusArrived.String()
		}
	case contracts.MsgStartRide:
		if err = h.svc.StartRide(ctx, driverID, in.RideID); err == nil {
			ack.Status = ride.StatusOnRide.String()
		}
	case contracts.MsgEndRide:
		var rd *ride.Ride
		if rd, err = h.svc.EndRide(ctx, driverID, in.RideID); err == nil {
			ack.Status = rd.Status.String()
		}
	}

	if err != nil {
		h.logger.Error(ctx, "driver_action_failed", "Driver ride action rejected", err,
			map[string]any{"driver_id": driverID, "action": msgType})
		_ = h.writeJSON(conn, contracts.WSMessage{
			Type: contracts.EventRideError,
			Data: contracts.DriverActionAck{RideID: in.RideID, Message: rideErrorMessage(err)},
		})
		return
	}

	event := contracts.EventRideStatusUpdate
	if msgType == contracts.MsgStartRide {
		event = contracts.EventRideStarted
	}
	_ = h.writeJSON(conn, contracts.WSMessage{Type: event, Data: ack})
}

// rideErrorMessage maps service errors to client-safe text.
func rideErrorMessage(err error) string {
	switch {
	case errors.Is(err, ride.ErrStaleStatus):
		return "ride is no longer available"
	case errors.Is(err, ride.ErrInvalidStatus):
		return "action not allowed in current ride state"
	case errors.Is(err, geo.ErrInvalidCoordinates):
		return "invalid coordinates"
	default:
		return "internal error"
	}
}
