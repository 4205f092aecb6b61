package dynamodb

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chris/coupon-exchange/pkg/lifecycle"
	"github.com/chris/coupon-exchange/pkg/models"
	"github.com/chris/coupon-exchange/pkg/storage"
)

// ListLedgerEntries queries the ledger table (partition coupon_id, sort id) and orders the
// entries by timestamp.
func (s *Store) ListLedgerEntries(ctx context.Context, couponID string) ([]models.LedgerEntry, error) {
	entries, err := queryAll[models.LedgerEntry](ctx, s.Client, &dynamodb.QueryInput{
		TableName:              aws.String(s.LedgerTableName),
		KeyConditionExpression: aws.String("coupon_id = :coupon"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":coupon": stringAV(couponID),
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	slices.SortStableFunc(entries, func(a, b models.LedgerEntry) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return entries, nil
}

// AppendLedgerEntries reads the coupon and its ledger, then writes the new entries and the
// re-evaluated coupon in one TransactWriteItems call. The coupon update is conditioned on the
// version that was read and every entry on its ID being new, so a concurrent append makes the
// whole call fail with ErrVersionConflict or ErrDuplicateLedgerEntry and nothing is written.
func (s *Store) AppendLedgerEntries(ctx context.Context, couponID string, entries []models.LedgerEntry, guard storage.AppendGuard, eval lifecycle.EvaluateFunc) (*storage.AppendResult, error) {
	if len(entries) > storage.MaxAppendBatch {
		return nil, fmt.Errorf("append batch of %d exceeds %d entries", len(entries), storage.MaxAppendBatch)
	}

	c, err := s.GetCoupon(ctx, couponID)
	if err != nil {
		return nil, err
	}
	existing, err := s.ListLedgerEntries(ctx, couponID)
	if err != nil {
		return nil, err
	}

	recorded := make(map[string]struct{}, len(existing))
	var total int64
	for _, e := range existing {
		recorded[e.Id] = struct{}{}
		total += e.Amount
	}

	result := &storage.AppendResult{}
	var delta int64
	for _, e := range entries {
		if _, dup := recorded[e.Id]; dup {
			result.Duplicates++
			continue
		}
		recorded[e.Id] = struct{}{}
		result.Appended = append(result.Appended, e)
		delta += e.Amount
	}
	total += delta
	// The coupon write below is conditioned on the version read here, so the guard holds at commit.
	if err := guard.Check(c, delta, total); err != nil {
		return nil, err
	}

	result.Evaluation = eval(*c, total)
	if !result.Evaluation.Changed && len(result.Appended) == 0 {
		result.Coupon = c
		return result, nil
	}

	now := time.Now().UTC()
	items := []types.TransactWriteItem{{
		Update: &types.Update{
			TableName:           aws.String(s.CouponsTableName),
			Key:                 map[string]types.AttributeValue{"id": stringAV(couponID)},
			UpdateExpression:    aws.String(evaluationUpdate),
			ConditionExpression: aws.String("version = :version"),
			ExpressionAttributeNames: map[string]string{
				"#status": "status",
			},
			ExpressionAttributeValues: evaluationValues(result.Evaluation, c.Version, now),
		},
	}}
	puts, err := s.ledgerPuts(result.Appended)
	if err != nil {
		return nil, err
	}
	items = append(items, puts...)

	if _, err := s.Client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
		if failed, ok := failedConditions(err); ok && len(failed) > 0 {
			if failed[0] == 0 {
				return nil, storage.ErrVersionConflict
			}
			return nil, storage.ErrDuplicateLedgerEntry
		}
		return nil, fmt.Errorf("failed to append ledger entries: %w", err)
	}

	result.Evaluation.Apply(c)
	c.Version++
	c.UpdatedAt = now
	result.Coupon = c
	return result, nil
}

func (s *Store) ledgerPuts(entries []models.LedgerEntry) ([]types.TransactWriteItem, error) {
	items := make([]types.TransactWriteItem, 0, len(entries))
	for _, e := range entries {
		av, err := attributevalue.MarshalMap(e)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal ledger entry: %w", err)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(s.LedgerTableName),
				Item:                av,
				ConditionExpression: aws.String("attribute_not_exists(id)"),
			},
		})
	}
	return items, nil
}
