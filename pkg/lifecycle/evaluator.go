// Package lifecycle derives a coupon's status from its value, its ledger total and its expiration.
//
// Evaluation never touches storage and never sends anything. Notification side effects are
// returned as intents and delivered by the caller once the new state has been committed.
package lifecycle

import (
	"log/slog"
	"strings"
	"time"

	"github.com/chris/coupon-exchange/pkg/models"
)

// IntentKind identifies a one-shot lifecycle notification.
type IntentKind string

const (
	IntentFullyUsed IntentKind = "fully-used"
	IntentExpired   IntentKind = "expired"
)

// Intent asks the caller to notify the coupon owner after commit.
type Intent struct {
	Kind     IntentKind
	CouponId string
	UserId   string
	Company  string
}

// Result is the output of Evaluate.
type Result struct {
	Status          models.CouponStatus
	UsedValue       int64
	NotifiedUsed    bool
	NotifiedExpired bool
	Intents         []Intent
	// Changed is true when the result differs from the evaluated snapshot.
	Changed bool
}

// Apply copies the evaluated fields onto the coupon.
func (r Result) Apply(c *models.Coupon) {
	c.Status = r.Status
	c.UsedValue = r.UsedValue
	c.NotifiedUsed = r.NotifiedUsed
	c.NotifiedExpired = r.NotifiedExpired
}

// EvaluateFunc evaluates a coupon snapshot against a fresh ledger total at a fixed instant.
// Storage backends call it inside their atomic write.
type EvaluateFunc func(c models.Coupon, ledgerTotal int64) Result

// At binds Evaluate to now.
func At(now time.Time) EvaluateFunc {
	return func(c models.Coupon, ledgerTotal int64) Result {
		return Evaluate(c, ledgerTotal, now)
	}
}

// Evaluate derives the coupon's status.
//  1. ledgerTotal >= value: USED
//  2. expiration present and passed: EXPIRED
//  3. otherwise ACTIVE
//
// Moving into USED or EXPIRED emits one intent per flag; flags are never cleared,
// so repeated evaluation of the same inputs emits nothing new.
func Evaluate(c models.Coupon, ledgerTotal int64, now time.Time) Result {
	res := Result{
		Status:          models.ACTIVE,
		UsedValue:       ledgerTotal,
		NotifiedUsed:    c.NotifiedUsed,
		NotifiedExpired: c.NotifiedExpired,
	}

	switch {
	case ledgerTotal >= c.Value:
		res.Status = models.USED
	case expired(c, now):
		res.Status = models.EXPIRED
	}

	if res.Status == models.USED && !res.NotifiedUsed {
		res.NotifiedUsed = true
		res.Intents = append(res.Intents, Intent{Kind: IntentFullyUsed, CouponId: c.Id, UserId: c.OwnerId, Company: c.Company})
	}
	if res.Status == models.EXPIRED && !res.NotifiedExpired {
		res.NotifiedExpired = true
		res.Intents = append(res.Intents, Intent{Kind: IntentExpired, CouponId: c.Id, UserId: c.OwnerId, Company: c.Company})
	}

	res.Changed = res.Status != c.Status ||
		res.UsedValue != c.UsedValue ||
		res.NotifiedUsed != c.NotifiedUsed ||
		res.NotifiedExpired != c.NotifiedExpired

	return res
}

func expired(c models.Coupon, now time.Time) bool {
	deadline, ok, err := ParseExpiration(c.Expiration)
	if err != nil {
		slog.Warn("ignoring malformed coupon expiration", "coupon_id", c.Id, "expiration", c.Expiration, "error", err)
		return false
	}
	return ok && now.After(deadline)
}

// ParseExpiration parses a date (2006-01-02) or an RFC3339 timestamp. A bare date is valid
// through the end of that day in UTC, so the returned deadline is its last instant.
// ok is false when s is empty.
func ParseExpiration(s string) (deadline time.Time, ok bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.Add(24*time.Hour - time.Nanosecond), true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}
