// Package memory is an in-process Storage implementation. A single mutex serializes every
// operation, which gives each multi-step write the same all-or-nothing behavior as the
// database backends. It backs local development and service-level tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chris/coupon-exchange/pkg/lifecycle"
	"github.com/chris/coupon-exchange/pkg/models"
	"github.com/chris/coupon-exchange/pkg/storage"
)

// Store implements the Storage interface in memory.
type Store struct {
	mu            sync.Mutex
	coupons       map[string]models.Coupon
	ledger        map[string][]models.LedgerEntry
	entryIDs      map[string]struct{}
	transactions  map[string]models.Transaction
	notifications map[string][]models.Notification
	connections   map[string]string
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		coupons:       make(map[string]models.Coupon),
		ledger:        make(map[string][]models.LedgerEntry),
		entryIDs:      make(map[string]struct{}),
		transactions:  make(map[string]models.Transaction),
		notifications: make(map[string][]models.Notification),
		connections:   make(map[string]string),
	}
}

// Make sure we conform to the interface
var _ storage.Storage = (*Store)(nil)

func (s *Store) GetCoupon(_ context.Context, couponID string) (*models.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.coupons[couponID]
	if !ok {
		return nil, fmt.Errorf("coupon %s: %w", couponID, storage.ErrNotFound)
	}
	return &c, nil
}

func (s *Store) ListCouponsByOwner(_ context.Context, ownerID string) ([]models.Coupon, error) {
	return s.filterCoupons(func(c models.Coupon) bool { return c.OwnerId == ownerID }), nil
}

func (s *Store) ListCouponsForSale(_ context.Context) ([]models.Coupon, error) {
	return s.filterCoupons(func(c models.Coupon) bool { return c.IsForSale }), nil
}

func (s *Store) ListCouponsByStatus(_ context.Context, status models.CouponStatus) ([]models.Coupon, error) {
	return s.filterCoupons(func(c models.Coupon) bool { return c.Status == status }), nil
}

func (s *Store) filterCoupons(keep func(models.Coupon) bool) []models.Coupon {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Coupon
	for _, c := range s.coupons {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) CreateCoupon(_ context.Context, c *models.Coupon, opening []models.LedgerEntry) (*models.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.coupons[c.Id]; exists {
		return nil, fmt.Errorf("coupon %s already exists", c.Id)
	}
	for _, e := range opening {
		if _, dup := s.entryIDs[e.Id]; dup {
			return nil, storage.ErrDuplicateLedgerEntry
		}
	}
	for _, e := range opening {
		s.entryIDs[e.Id] = struct{}{}
		s.ledger[c.Id] = append(s.ledger[c.Id], e)
	}
	s.coupons[c.Id] = *c
	return c, nil
}

func (s *Store) UpdateListing(_ context.Context, c *models.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.couponAtVersion(c.Id, c.Version)
	if err != nil {
		return err
	}
	if stored.PendingTransactionId != "" {
		return storage.ErrCouponPending
	}
	stored.IsForSale = c.IsForSale
	stored.IsAvailable = c.IsAvailable
	stored.AskingPrice = c.AskingPrice
	s.putCoupon(&stored, c.UpdatedAt)
	c.Version = stored.Version
	return nil
}

func (s *Store) ApplyStatus(_ context.Context, c *models.Coupon, res lifecycle.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.couponAtVersion(c.Id, c.Version)
	if err != nil {
		return err
	}
	res.Apply(&stored)
	s.putCoupon(&stored, time.Now())
	*c = stored
	return nil
}

func (s *Store) ListLedgerEntries(_ context.Context, couponID string) ([]models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]models.LedgerEntry, len(s.ledger[couponID]))
	copy(entries, s.ledger[couponID])
	return entries, nil
}

func (s *Store) AppendLedgerEntries(_ context.Context, couponID string, entries []models.LedgerEntry, guard storage.AppendGuard, eval lifecycle.EvaluateFunc) (*storage.AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.coupons[couponID]
	if !ok {
		return nil, fmt.Errorf("coupon %s: %w", couponID, storage.ErrNotFound)
	}

	result := &storage.AppendResult{}
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := s.entryIDs[e.Id]; dup {
			result.Duplicates++
			continue
		}
		if _, dup := seen[e.Id]; dup {
			result.Duplicates++
			continue
		}
		seen[e.Id] = struct{}{}
		result.Appended = append(result.Appended, e)
	}

	var total, delta int64
	for _, e := range s.ledger[couponID] {
		total += e.Amount
	}
	for _, e := range result.Appended {
		delta += e.Amount
	}
	total += delta
	if err := guard.Check(&c, delta, total); err != nil {
		return nil, err
	}

	for _, e := range result.Appended {
		s.entryIDs[e.Id] = struct{}{}
		s.ledger[couponID] = append(s.ledger[couponID], e)
	}

	result.Evaluation = eval(c, total)
	if result.Evaluation.Changed || len(result.Appended) > 0 {
		result.Evaluation.Apply(&c)
		s.putCoupon(&c, time.Now())
	}
	result.Coupon = &c
	return result, nil
}

func (s *Store) GetTransaction(_ context.Context, txID string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[txID]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", txID, storage.ErrNotFound)
	}
	return &tx, nil
}

func (s *Store) ListTransactionsByUser(_ context.Context, userID string) ([]models.Transaction, error) {
	return s.filterTransactions(func(tx models.Transaction) bool {
		return tx.BuyerId == userID || tx.SellerId == userID
	}), nil
}

func (s *Store) ListStalledTransactions(_ context.Context, cutoff time.Time) ([]models.Transaction, error) {
	return s.filterTransactions(func(tx models.Transaction) bool {
		return !tx.Status.Terminal() && tx.UpdatedAt.Before(cutoff)
	}), nil
}

func (s *Store) filterTransactions(keep func(models.Transaction) bool) []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Transaction
	for _, tx := range s.transactions {
		if keep(tx) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *Store) CreateTransaction(_ context.Context, tx *models.Transaction) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[tx.Id]; exists {
		return nil, fmt.Errorf("transaction %s already exists", tx.Id)
	}
	c, ok := s.coupons[tx.CouponId]
	if !ok {
		return nil, fmt.Errorf("coupon %s: %w", tx.CouponId, storage.ErrNotFound)
	}
	if c.Status != models.ACTIVE || !c.IsForSale || !c.IsAvailable || c.PendingTransactionId != "" || c.OwnerId != tx.SellerId {
		return nil, storage.ErrCouponUnavailable
	}

	c.IsAvailable = false
	c.PendingTransactionId = tx.Id
	s.putCoupon(&c, tx.CreatedAt)
	tx.UsedValueAtRequest = c.UsedValue
	s.transactions[tx.Id] = *tx
	return tx, nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx *models.Transaction, from models.TransactionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkTransaction(tx, from); err != nil {
		return err
	}
	s.putTransaction(tx)
	return nil
}

func (s *Store) ProvisionCode(_ context.Context, tx *models.Transaction, from models.TransactionStatus, sealedSecret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkTransaction(tx, from); err != nil {
		return err
	}
	if sealedSecret != "" {
		c, ok := s.coupons[tx.CouponId]
		if !ok || c.PendingTransactionId != tx.Id {
			return storage.ErrStaleTransaction
		}
		c.Secret = sealedSecret
		s.putCoupon(&c, tx.UpdatedAt)
	}
	s.putTransaction(tx)
	return nil
}

func (s *Store) ReleaseTransaction(_ context.Context, tx *models.Transaction, from models.TransactionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkTransaction(tx, from); err != nil {
		return err
	}
	c, ok := s.coupons[tx.CouponId]
	if !ok || c.PendingTransactionId != tx.Id {
		return storage.ErrStaleTransaction
	}
	c.PendingTransactionId = ""
	c.IsAvailable = true
	s.putCoupon(&c, tx.UpdatedAt)
	s.putTransaction(tx)
	return nil
}

func (s *Store) CompleteTransaction(_ context.Context, tx *models.Transaction, from models.TransactionStatus, eval lifecycle.EvaluateFunc) (*models.Coupon, lifecycle.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkTransaction(tx, from); err != nil {
		return nil, lifecycle.Result{}, err
	}
	c, ok := s.coupons[tx.CouponId]
	if !ok || c.PendingTransactionId != tx.Id || c.OwnerId != tx.SellerId {
		return nil, lifecycle.Result{}, storage.ErrVersionConflict
	}
	if c.UsedValue != tx.UsedValueAtRequest {
		return nil, lifecycle.Result{}, storage.ErrCouponBalanceChanged
	}

	c.OwnerId = tx.BuyerId
	c.Cost = tx.AskingPrice
	c.AskingPrice = 0
	c.IsForSale = false
	c.IsAvailable = true
	c.PendingTransactionId = ""
	res := eval(c, c.UsedValue)
	res.Apply(&c)
	s.putCoupon(&c, tx.UpdatedAt)
	s.putTransaction(tx)
	return &c, res, nil
}

func (s *Store) SaveNotification(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notifications[n.UserId] = append(s.notifications[n.UserId], *n)
	return nil
}

func (s *Store) ListNotifications(_ context.Context, userID string, limit int32) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.notifications[userID]
	var out []models.Notification
	for i := len(all) - 1; i >= 0 && (limit <= 0 || int32(len(out)) < limit); i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, userID, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notifications[userID] {
		if n.Id == notificationID {
			s.notifications[userID][i].Read = true
			return nil
		}
	}
	return fmt.Errorf("notification %s: %w", notificationID, storage.ErrNotFound)
}

func (s *Store) AddConnection(_ context.Context, connectionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connections[connectionID] = userID
	return nil
}

func (s *Store) RemoveConnection(_ context.Context, connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.connections, connectionID)
	return nil
}

func (s *Store) GetConnectionsForUser(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for connID, owner := range s.connections {
		if owner == userID {
			ids = append(ids, connID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// couponAtVersion must be called with s.mu held.
func (s *Store) couponAtVersion(couponID string, version int64) (models.Coupon, error) {
	stored, ok := s.coupons[couponID]
	if !ok {
		return models.Coupon{}, fmt.Errorf("coupon %s: %w", couponID, storage.ErrNotFound)
	}
	if stored.Version != version {
		return models.Coupon{}, storage.ErrVersionConflict
	}
	return stored, nil
}

// putCoupon must be called with s.mu held.
func (s *Store) putCoupon(c *models.Coupon, now time.Time) {
	c.Version++
	c.UpdatedAt = now
	s.coupons[c.Id] = *c
}

// checkTransaction must be called with s.mu held.
func (s *Store) checkTransaction(tx *models.Transaction, from models.TransactionStatus) error {
	stored, ok := s.transactions[tx.Id]
	if !ok {
		return fmt.Errorf("transaction %s: %w", tx.Id, storage.ErrNotFound)
	}
	if stored.Status != from || stored.Version != tx.Version {
		return storage.ErrStaleTransaction
	}
	return nil
}

// putTransaction must be called with s.mu held.
func (s *Store) putTransaction(tx *models.Transaction) {
	tx.Version++
	s.transactions[tx.Id] = *tx
}
