package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/metrics"
	"ride-dispatch/internal/ports"
)

// StatusPublisher taps ride transitions into the broker. Best effort.
type StatusPublisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// Policy holds the dispatch tuning knobs.
type Policy struct {
	InitialRadiusKM   float64
	RadiusIncrementKM float64
	MaxRadiusKM       float64
	OfferWait         time.Duration
	OverallDeadline   time.Duration

	// RetryBackoff paces retries after transient geo/store errors.
	RetryBackoff time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.RetryBackoff <= 0 {
		p.RetryBackoff = 500 * time.Millisecond
	}
	return p
}

// how many candidates to pull from the geo index per pass
const maxCandidates = 20

// Coordinator runs the offer loop for a single ride: query nearby drivers in
// an expanding radius, offer to one driver at a time, wait out each offer
// window, and give up with notApprove once the max radius is swept or the
// overall deadline passes. Every exit path releases the registry entry and
// the dispatch claim.
type Coordinator struct {
	logger   *logger.Logger
	uow      ports.UnitOfWork
	rides    ports.RideRepository
	geo      ports.GeoIndex
	notifier ports.Notifier
	registry *Registry
	policy   Policy

	// pub is optional; nil disables broker events.
	pub StatusPublisher
}

var _ ports.Dispatcher = (*Coordinator)(nil)

// NewCoordinator wires a coordinator. The same instance serves all rides;
// Dispatch is called once per claimed ride, usually on its own goroutine.
func NewCoordinator(
	logger *logger.Logger,
	uow ports.UnitOfWork,
	rides ports.RideRepository,
	geoIndex ports.GeoIndex,
	notifier ports.Notifier,
	registry *Registry,
	pub StatusPublisher,
	policy Policy,
) *Coordinator {
	return &Coordinator{
		logger:   logger,
		uow:      uow,
		rides:    rides,
		geo:      geoIndex,
		notifier: notifier,
		registry: registry,
		pub:      pub,
		policy:   policy.withDefaults(),
	}
}

type outcome int

const (
	outcomePending outcome = iota
	outcomeAccepted
	outcomeGone
)

// Dispatch runs the offer loop until the ride is accepted, the search area
// is exhausted, the deadline passes, or the run is cancelled. The caller must
// have claimed the ride's dispatching flag first.
func (c *Coordinator) Dispatch(ctx context.Context, rideID string) {
	ctx = c.logger.WithRideID(ctx, rideID)

	runCtx, release, err := c.registry.Start(ctx, rideID)
	if err != nil {
		c.logger.Info(ctx, "dispatch_already_active", "Another coordinator owns this ride", nil)
		return
	}
	// the claim must not outlive this run, whatever the exit path. The
	// registry entry goes first: a successor that re-claims the ride the
	// instant the flag clears must find the registry free.
	defer func() {
		release()
		c.clearClaim(ctx, rideID)
	}()

	metrics.DispatchRunsTotal.Inc()
	started := time.Now()
	defer func() {
		metrics.DispatchDuration.Observe(time.Since(started).Seconds())
	}()

	rd, err := c.loadRide(runCtx, rideID)
	if err != nil {
		c.logger.Error(ctx, "dispatch_load_failed", "Failed to load ride for dispatch", err, nil)
		return
	}
	if rd == nil || rd.Status != ride.StatusRequested {
		return
	}

	c.logger.Info(ctx, "dispatch_started", "Dispatch loop started", map[string]any{
		"initial_radius_km": c.policy.InitialRadiusKM,
		"deadline":          c.policy.OverallDeadline.String(),
	})

	offer := offerPayload(rd)
	deadline := started.Add(c.policy.OverallDeadline)
	radius := c.policy.InitialRadiusKM
	offered := make(map[string]struct{})

	for {
		if runCtx.Err() != nil {
			return
		}
		if !time.Now().Before(deadline) {
			c.giveUp(ctx, rd)
			return
		}

		candidates, err := c.geo.Nearby(runCtx, rd.Pickup, radius, maxCandidates)
		if err != nil {
			c.logger.Error(ctx, "dispatch_geo_failed", "Geo lookup failed, retrying", err,
				map[string]any{"radius_km": radius})
			if !c.pause(runCtx, c.policy.RetryBackoff) {
				return
			}
			continue
		}

		for _, cand := range candidates {
			if runCtx.Err() != nil {
				return
			}
			if !time.Now().Before(deadline) {
				c.giveUp(ctx, rd)
				return
			}

			if _, seen := offered[cand.DriverID]; seen {
				continue
			}
			offered[cand.DriverID] = struct{}{}

			if !c.notifier.IsDriverOnline(cand.DriverID) {
				continue
			}
			if !c.notifier.NotifyDriver(runCtx, cand.DriverID, contracts.EventNewRide, offer) {
				continue
			}
			metrics.DispatchOffersTotal.Inc()

			c.logger.Debug(ctx, "dispatch_offer_sent", "Ride offered to driver", map[string]any{
				"driver_id":   cand.DriverID,
				"distance_km": cand.DistanceKM,
				"radius_km":   radius,
			})

			if !c.pause(runCtx, c.policy.OfferWait) {
				return
			}

			switch c.checkOutcome(runCtx, rideID) {
			case outcomeAccepted:
				c.logger.Info(ctx, "dispatch_matched", "Ride accepted during offer window",
					map[string]any{"driver_id": cand.DriverID})
				return
			case outcomeGone:
				return
			case outcomePending:
				// next candidate
			}
		}

		if radius >= c.policy.MaxRadiusKM {
			// the whole search area has been swept with nobody accepting
			c.giveUp(ctx, rd)
			return
		}
		radius += c.policy.RadiusIncrementKM
		if radius > c.policy.MaxRadiusKM {
			radius = c.policy.MaxRadiusKM
		}
	}
}

// loadRide reads the ride in its own short transaction.
func (c *Coordinator) loadRide(ctx context.Context, rideID string) (*ride.Ride, error) {
	var rd *ride.Ride
	err := c.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		rd, err = c.rides.GetByID(ctx, rideID)
		return err
	})
	return rd, err
}

// checkOutcome re-reads the ride after an offer window. Store errors count as
// pending; the loop retries on its own schedule.
func (c *Coordinator) checkOutcome(ctx context.Context, rideID string) outcome {
	rd, err := c.loadRide(ctx, rideID)
	if err != nil {
		c.logger.Error(ctx, "dispatch_recheck_failed", "Failed to re-read ride after offer window", err, nil)
		return outcomePending
	}
	if rd == nil {
		return outcomeGone
	}

	switch rd.Status {
	case ride.StatusRequested:
		return outcomePending
	case ride.StatusAccepted, ride.StatusArrived, ride.StatusOnRide, ride.StatusCompleted:
		return outcomeAccepted
	default:
		return outcomeGone
	}
}

// giveUp marks the ride notApprove and tells the passenger once. A stale
// precondition means a driver accepted at the last moment; the run just ends.
func (c *Coordinator) giveUp(ctx context.Context, rd *ride.Ride) {
	// deadline work must survive run cancellation
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	err := c.uow.WithinTx(opCtx, func(ctx context.Context) error {
		return c.rides.MarkNotApproved(ctx, rd.ID)
	})
	if err != nil {
		if errors.Is(err, ride.ErrStaleStatus) {
			c.logger.Info(ctx, "dispatch_deadline_race", "Ride left requested right at the deadline", nil)
		} else {
			c.logger.Error(ctx, "dispatch_give_up_failed", "Failed to mark ride notApprove", err, nil)
		}
		return
	}

	metrics.DispatchNotApprovedTotal.Inc()
	c.logger.Info(ctx, "dispatch_not_approved", "No driver found before the deadline", nil)

	c.publishNotApproved(ctx, rd)

	delivered := c.notifier.NotifyPassenger(opCtx, rd.PassengerID, contracts.EventRideNotApproved,
		contracts.PassengerRideEvent{
			RideID:    rd.ID,
			Status:    ride.StatusNotApproved.String(),
			Timestamp: time.Now().UTC(),
		})
	if delivered {
		if err := c.uow.WithinTx(opCtx, func(ctx context.Context) error {
			return c.rides.MarkNotified(ctx, rd.ID)
		}); err != nil {
			c.logger.Error(ctx, "dispatch_mark_notified_failed", "Failed to record notApprove delivery", err, nil)
		}
	}
}

// publishNotApproved taps the terminal transition into the ride topic.
func (c *Coordinator) publishNotApproved(ctx context.Context, rd *ride.Ride) {
	if c.pub == nil {
		return
	}

	body, err := json.Marshal(contracts.RideStatusMessage{
		RideID:      rd.ID,
		PassengerID: rd.PassengerID,
		Status:      ride.StatusNotApproved.String(),
		Timestamp:   time.Now().UTC(),
		Envelope: contracts.Envelope{
			Producer: "dispatch-service",
			SentAt:   time.Now().UTC(),
		},
	})
	if err != nil {
		return
	}

	routingKey := contracts.RouteRideStatusPrefix + ride.StatusNotApproved.String()
	if err := c.pub.Publish(contracts.ExchangeRideTopic, routingKey, body); err != nil {
		c.logger.Error(ctx, "dispatch_publish_failed", "Failed to publish notApprove status", err,
			map[string]any{"routing_key": routingKey})
	}
}

// clearClaim releases the dispatching flag with a fresh context since the run
// context is usually cancelled by the time cleanup runs.
func (c *Coordinator) clearClaim(ctx context.Context, rideID string) {
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := c.uow.WithinTx(opCtx, func(ctx context.Context) error {
		return c.rides.ClearDispatch(ctx, rideID)
	}); err != nil {
		c.logger.Error(ctx, "dispatch_clear_claim_failed", "Failed to release dispatch claim", err, nil)
	}
}

// pause waits out d or reports false when the run is cancelled.
func (c *Coordinator) pause(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func offerPayload(rd *ride.Ride) contracts.RideOffer {
	return contracts.RideOffer{
		RideID:      rd.ID,
		Pickup:      contracts.GeoPoint{Lat: rd.Pickup.Lat, Lng: rd.Pickup.Lng},
		Dropoff:     contracts.GeoPoint{Lat: rd.Dropoff.Lat, Lng: rd.Dropoff.Lng},
		Fare:        contracts.FareInfo{Amount: rd.Fare.Amount, Currency: rd.Fare.Currency},
		DistanceKM:  rd.DistanceKM,
		DurationMin: rd.DurationMin,
		RequestedAt: rd.CreatedAt,
	}
}
