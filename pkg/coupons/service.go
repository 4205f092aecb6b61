// Package coupons is the entry point for coupon records outside of a sale handshake:
// registration, listing, viewing, secret reveal and the periodic lifecycle sweep.
package coupons

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chris/coupon-exchange/pkg/errs"
	"github.com/chris/coupon-exchange/pkg/ledger"
	"github.com/chris/coupon-exchange/pkg/lifecycle"
	"github.com/chris/coupon-exchange/pkg/metrics"
	"github.com/chris/coupon-exchange/pkg/models"
	"github.com/chris/coupon-exchange/pkg/notify"
	"github.com/chris/coupon-exchange/pkg/secrets"
	"github.com/chris/coupon-exchange/pkg/storage"
	"github.com/google/uuid"
)

const listingAttempts = 3

// View is a coupon as presented to a user: description opened, secret withheld.
type View struct {
	models.Coupon
	RemainingValue int64 `json:"remaining_value"`
	HasSecret      bool  `json:"has_secret"`
}

// Service manages coupons.
type Service struct {
	store    storage.CouponStore
	box      *secrets.Box
	notifier notify.Notifier
	now      func() time.Time
}

// NewService creates a new Service.
func NewService(store storage.CouponStore, box *secrets.Box, notifier notify.Notifier) *Service {
	return &Service{store: store, box: box, notifier: notifier, now: time.Now}
}

// WithClock replaces the service clock. Used in tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create registers a coupon for ownerID. An opening used_value is recorded as the coupon's
// first ledger entry so the ledger replay matches from the start.
func (s *Service) Create(ctx context.Context, ownerID string, in CreateCouponInput) (*View, error) {
	const op = "coupons.Create"
	if err := in.Validate(op); err != nil {
		return nil, err
	}

	description, err := s.box.Seal(in.Description)
	if err != nil {
		return nil, fmt.Errorf("failed to seal description: %w", err)
	}
	secret, err := s.box.SealSecret(in.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to seal secret: %w", err)
	}

	now := s.now().UTC()
	c := models.Coupon{
		Id:          uuid.New().String(),
		OwnerId:     ownerID,
		Company:     in.Company,
		Description: description,
		Secret:      secret,
		Value:       in.Value,
		Cost:        in.Cost,
		AskingPrice: in.AskingPrice,
		Status:      models.ACTIVE,
		Expiration:  in.Expiration,
		IsAvailable: true,
		IsOneTime:   in.IsOneTime,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var opening []models.LedgerEntry
	if in.UsedValue > 0 {
		opening = append(opening, ledger.NewEntry(c.Id, models.SourceManual, "", now, "", in.UsedValue, "opening balance", now))
	}

	res := lifecycle.Evaluate(c, ledger.Sum(opening), now)
	res.Apply(&c)
	if in.ForSale {
		if c.Status != models.ACTIVE {
			return nil, errs.Validationf(op, "only active coupons can be listed, coupon is %s", c.Status)
		}
		c.IsForSale = true
	}

	created, err := s.store.CreateCoupon(ctx, &c, opening)
	if err != nil {
		return nil, fmt.Errorf("failed to create coupon: %w", err)
	}
	slog.Info("coupon created", "coupon_id", created.Id, "owner_id", ownerID, "status", created.Status)

	notify.DeliverIntents(ctx, s.notifier, res.Intents)
	return s.view(created)
}

// CreateFromExtraction registers a coupon from an extraction record, with the same validation
// as manual entry.
func (s *Service) CreateFromExtraction(ctx context.Context, ownerID string, e ExtractedCoupon) (*View, error) {
	return s.Create(ctx, ownerID, e.ToInput())
}

// Get returns a coupon to its owner, or to anyone while it is listed for sale.
func (s *Service) Get(ctx context.Context, userID, couponID string) (*View, error) {
	c, err := s.store.GetCoupon(ctx, couponID)
	if err != nil {
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}
	if c.OwnerId != userID && !c.IsForSale {
		return nil, errs.Forbiddenf("coupons.Get", "coupon %s is not visible to %s", couponID, userID)
	}
	return s.view(c)
}

// ListOwned returns every coupon the user owns.
func (s *Service) ListOwned(ctx context.Context, userID string) ([]View, error) {
	list, err := s.store.ListCouponsByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list coupons: %w", err)
	}
	return s.views(list)
}

// ListMarket returns coupons another user could request right now.
func (s *Service) ListMarket(ctx context.Context, userID string) ([]View, error) {
	list, err := s.store.ListCouponsForSale(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list coupons for sale: %w", err)
	}

	now := s.now()
	market := list[:0]
	for _, c := range list {
		if c.OwnerId == userID || !c.IsAvailable {
			continue
		}
		if lifecycle.Evaluate(c, c.UsedValue, now).Status != models.ACTIVE {
			continue
		}
		market = append(market, c)
	}
	return s.views(market)
}

// SetListing lists or unlists a coupon. Only ACTIVE coupons can be listed and nothing can
// change while a transaction is pending.
func (s *Service) SetListing(ctx context.Context, userID, couponID string, in ListingInput) (*View, error) {
	const op = "coupons.SetListing"
	if err := in.Validate(op); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < listingAttempts; attempt++ {
		c, err := s.store.GetCoupon(ctx, couponID)
		if err != nil {
			return nil, fmt.Errorf("failed to get coupon: %w", err)
		}
		if c.OwnerId != userID {
			return nil, errs.Forbiddenf(op, "coupon %s is not owned by %s", couponID, userID)
		}
		if in.ForSale && lifecycle.Evaluate(*c, c.UsedValue, s.now()).Status != models.ACTIVE {
			return nil, errs.Validationf(op, "only active coupons can be listed")
		}
		if c.PendingTransactionId != "" {
			return nil, storage.ErrCouponPending
		}

		c.IsForSale = in.ForSale
		c.IsAvailable = true
		c.AskingPrice = in.AskingPrice
		c.UpdatedAt = s.now().UTC()
		err = s.store.UpdateListing(ctx, c)
		if err == nil {
			slog.Info("coupon listing updated", "coupon_id", couponID, "for_sale", in.ForSale, "asking_price", in.AskingPrice)
			return s.view(c)
		}
		if !errors.Is(err, storage.ErrVersionConflict) {
			return nil, fmt.Errorf("failed to update listing: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("failed to update listing: %w", lastErr)
}

// RevealSecret opens the coupon's code for its owner.
func (s *Service) RevealSecret(ctx context.Context, userID, couponID string) (secrets.CouponSecret, error) {
	c, err := s.store.GetCoupon(ctx, couponID)
	if err != nil {
		return secrets.CouponSecret{}, fmt.Errorf("failed to get coupon: %w", err)
	}
	if c.OwnerId != userID {
		return secrets.CouponSecret{}, errs.Forbiddenf("coupons.RevealSecret", "coupon %s is not owned by %s", couponID, userID)
	}
	secret, err := s.box.OpenSecret(c.Secret)
	if err != nil {
		return secrets.CouponSecret{}, fmt.Errorf("failed to open coupon secret: %w", err)
	}
	return secret, nil
}

// Reevaluate re-derives the status of every ACTIVE coupon at the current time, persisting
// changes (typically expirations) and sending their notifications. Coupons that change
// concurrently are left for the next sweep. It returns the number of coupons updated.
func (s *Service) Reevaluate(ctx context.Context) (int, error) {
	active, err := s.store.ListCouponsByStatus(ctx, models.ACTIVE)
	if err != nil {
		return 0, fmt.Errorf("failed to list active coupons: %w", err)
	}

	now := s.now()
	updated := 0
	for i := range active {
		c := &active[i]
		res := lifecycle.Evaluate(*c, c.UsedValue, now)
		if !res.Changed {
			continue
		}
		if err := s.store.ApplyStatus(ctx, c, res); err != nil {
			if errors.Is(err, storage.ErrVersionConflict) {
				slog.Info("coupon changed during sweep, skipping", "coupon_id", c.Id)
				continue
			}
			return updated, fmt.Errorf("failed to apply status to coupon %s: %w", c.Id, err)
		}
		updated++
		metrics.CouponStatusChanges.WithLabelValues(string(res.Status)).Inc()
		notify.DeliverIntents(ctx, s.notifier, res.Intents)
	}
	return updated, nil
}

// Present builds the view of a coupon another component already loaded.
func (s *Service) Present(c *models.Coupon) (*View, error) {
	return s.view(c)
}

func (s *Service) view(c *models.Coupon) (*View, error) {
	description, err := s.box.Open(c.Description)
	if err != nil {
		return nil, fmt.Errorf("failed to open description of coupon %s: %w", c.Id, err)
	}
	v := &View{Coupon: *c, RemainingValue: c.Remaining(), HasSecret: c.Secret != ""}
	v.Description = description
	v.Secret = ""
	return v, nil
}

func (s *Service) views(list []models.Coupon) ([]View, error) {
	out := make([]View, 0, len(list))
	for i := range list {
		v, err := s.view(&list[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}
