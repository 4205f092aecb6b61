package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/chris/coupon-exchange/pkg/errs"
	"github.com/chris/coupon-exchange/pkg/models"
)

// UsageInput is a manual usage record.
type UsageInput struct {
	Amount    int64      `json:"amount"`
	Location  string     `json:"location,omitempty"`
	Detail    string     `json:"detail,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

func (in UsageInput) Validate(op string) error {
	if in.Amount <= 0 {
		return errs.Validationf(op, "amount must be positive, got %d", in.Amount)
	}
	if in.Timestamp != nil && in.Timestamp.IsZero() {
		return errs.Validationf(op, "timestamp must not be zero")
	}
	return nil
}

// RechargeInput is a manual recharge record.
type RechargeInput struct {
	Amount int64  `json:"amount"`
	Detail string `json:"detail,omitempty"`
}

func (in RechargeInput) Validate(op string) error {
	if in.Amount <= 0 {
		return errs.Validationf(op, "amount must be positive, got %d", in.Amount)
	}
	return nil
}

// EntryID is the dedup key of an entry: the same coupon, reference, instant, location and
// amount always produce the same ID.
func EntryID(couponID, reference string, ts time.Time, location string, amount int64) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%d",
		couponID,
		strings.TrimSpace(reference),
		ts.UTC().Format(time.RFC3339Nano),
		strings.TrimSpace(location),
		amount,
	)
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// NewEntry builds an entry with its dedup key.
func NewEntry(couponID string, source models.LedgerSource, reference string, ts time.Time, location string, amount int64, detail string, recordedAt time.Time) models.LedgerEntry {
	return models.LedgerEntry{
		Id:         EntryID(couponID, reference, ts, location, amount),
		CouponId:   couponID,
		Amount:     amount,
		Timestamp:  ts.UTC(),
		Source:     source,
		Reference:  strings.TrimSpace(reference),
		Location:   strings.TrimSpace(location),
		Detail:     detail,
		RecordedAt: recordedAt,
	}
}

// EntriesFromReport validates a usage report and converts each row into a candidate entry
// with amount usage - recharge. Rows that net to zero are dropped.
func EntriesFromReport(op string, report models.UsageReport, recordedAt time.Time) ([]models.LedgerEntry, error) {
	if strings.TrimSpace(report.CouponId) == "" {
		return nil, errs.Validationf(op, "coupon_id is required")
	}

	entries := make([]models.LedgerEntry, 0, len(report.Rows))
	for i, row := range report.Rows {
		if row.Timestamp.IsZero() {
			return nil, errs.Validationf(op, "row %d: timestamp is required", i)
		}
		if row.UsageAmount < 0 || row.RechargeAmount < 0 {
			return nil, errs.Validationf(op, "row %d: amounts must not be negative", i)
		}
		amount := row.UsageAmount - row.RechargeAmount
		if amount == 0 {
			continue
		}
		detail := "usage report"
		if row.RechargeAmount > 0 && row.UsageAmount == 0 {
			detail = "usage report recharge"
		}
		entries = append(entries, NewEntry(report.CouponId, models.SourceExternalReport, row.Reference, row.Timestamp, row.Location, amount, detail, recordedAt))
	}
	return entries, nil
}
