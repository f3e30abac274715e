package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/ports"
)

// CreateRide is the HTTP intake for a new ride. The passenger comes from the
// token subject, never from the body.
func (h *Handler) CreateRide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := jwt.RequireClaims(r)

	var in contracts.RideRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.httpError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	pickup, err := geo.New(in.Origin.Latitude, in.Origin.Longitude)
	if err != nil {
		h.httpError(w, http.StatusBadRequest, "invalid origin coordinates")
		return
	}
	dropoff, err := geo.New(in.Destination.Latitude, in.Destination.Longitude)
	if err != nil {
		h.httpError(w, http.StatusBadRequest, "invalid destination coordinates")
		return
	}

	rd, err := h.svc.RequestRide(ctx, claims.Subject, ports.RideRequest{
		Pickup:      pickup,
		Dropoff:     dropoff,
		DistanceKM:  in.DistanceKM,
		DurationMin: in.DurationMin,
		FareAmount:  in.FareAmount,
	})
	if err != nil {
		if errors.Is(err, ride.ErrInvalidRide) || errors.Is(err, geo.ErrInvalidCoordinates) {
			h.httpError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error(ctx, "ride_create_failed", "Failed to create ride", err, nil)
		h.httpError(w, http.StatusInternalServerError, "failed to create ride")
		return
	}

	h.jsonResponse(w, http.StatusCreated, map[string]any{
		"ride_id": rd.ID,
		"status":  rd.Status.String(),
		"fare":    contracts.FareInfo{Amount: rd.Fare.Amount, Currency: rd.Fare.Currency},
	})
}
