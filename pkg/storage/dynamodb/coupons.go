package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chris/coupon-exchange/pkg/lifecycle"
	"github.com/chris/coupon-exchange/pkg/models"
	"github.com/chris/coupon-exchange/pkg/storage"
)

// GetCoupon retrieves a coupon by its ID with a strongly consistent read.
func (s *Store) GetCoupon(ctx context.Context, couponID string) (*models.Coupon, error) {
	result, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.CouponsTableName),
		Key:            map[string]types.AttributeValue{"id": stringAV(couponID)},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get coupon from DynamoDB: %w", err)
	}
	if result.Item == nil {
		return nil, fmt.Errorf("coupon %s: %w", couponID, storage.ErrNotFound)
	}

	var c models.Coupon
	if err := attributevalue.UnmarshalMap(result.Item, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal coupon: %w", err)
	}
	return &c, nil
}

func (s *Store) ListCouponsByOwner(ctx context.Context, ownerID string) ([]models.Coupon, error) {
	coupons, err := queryAll[models.Coupon](ctx, s.Client, &dynamodb.QueryInput{
		TableName:              aws.String(s.CouponsTableName),
		IndexName:              aws.String(ownerIDIndex),
		KeyConditionExpression: aws.String("owner_id = :owner"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": stringAV(ownerID),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query coupons by owner: %w", err)
	}
	return coupons, nil
}

// ListCouponsForSale queries the status index for ACTIVE coupons with is_for_sale set.
func (s *Store) ListCouponsForSale(ctx context.Context) ([]models.Coupon, error) {
	coupons, err := queryAll[models.Coupon](ctx, s.Client, &dynamodb.QueryInput{
		TableName:              aws.String(s.CouponsTableName),
		IndexName:              aws.String(couponStatusIndex),
		KeyConditionExpression: aws.String("#status = :status"),
		FilterExpression:       aws.String("is_for_sale = :true"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": stringAV(string(models.ACTIVE)),
			":true":   boolAV(true),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query coupons for sale: %w", err)
	}
	return coupons, nil
}

func (s *Store) ListCouponsByStatus(ctx context.Context, status models.CouponStatus) ([]models.Coupon, error) {
	coupons, err := queryAll[models.Coupon](ctx, s.Client, &dynamodb.QueryInput{
		TableName:              aws.String(s.CouponsTableName),
		IndexName:              aws.String(couponStatusIndex),
		KeyConditionExpression: aws.String("#status = :status"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": stringAV(string(status)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query coupons by status: %w", err)
	}
	return coupons, nil
}

// CreateCoupon puts the coupon and its opening ledger entries in one transaction.
func (s *Store) CreateCoupon(ctx context.Context, c *models.Coupon, opening []models.LedgerEntry) (*models.Coupon, error) {
	if len(opening) > storage.MaxAppendBatch {
		return nil, fmt.Errorf("too many opening ledger entries: %d", len(opening))
	}

	couponAV, err := attributevalue.MarshalMap(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal coupon: %w", err)
	}
	items := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:           aws.String(s.CouponsTableName),
			Item:                couponAV,
			ConditionExpression: aws.String("attribute_not_exists(id)"),
		},
	}}
	entryItems, err := s.ledgerPuts(opening)
	if err != nil {
		return nil, err
	}
	items = append(items, entryItems...)

	if _, err := s.Client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
		if failed, ok := failedConditions(err); ok && len(failed) > 0 && failed[0] > 0 {
			return nil, storage.ErrDuplicateLedgerEntry
		}
		return nil, fmt.Errorf("failed to create coupon: %w", err)
	}
	return c, nil
}

// UpdateListing writes the sale flags if the coupon is unchanged and has no pending transaction.
func (s *Store) UpdateListing(ctx context.Context, c *models.Coupon) error {
	_, err := s.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.CouponsTableName),
		Key:                 map[string]types.AttributeValue{"id": stringAV(c.Id)},
		UpdateExpression:    aws.String("SET is_for_sale = :for_sale, is_available = :available, asking_price = :price, updated_at = :now, version = version + :inc"),
		ConditionExpression: aws.String("version = :version AND attribute_not_exists(pending_transaction_id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":for_sale":  boolAV(c.IsForSale),
			":available": boolAV(c.IsAvailable),
			":price":     numberAV(c.AskingPrice),
			":now":       timeAV(c.UpdatedAt),
			":inc":       numberAV(1),
			":version":   numberAV(c.Version),
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if _, pending := ccf.Item["pending_transaction_id"]; pending {
				return storage.ErrCouponPending
			}
			return storage.ErrVersionConflict
		}
		return fmt.Errorf("failed to update coupon listing: %w", err)
	}
	c.Version++
	return nil
}

// ApplyStatus persists an evaluation result if the coupon is unchanged.
func (s *Store) ApplyStatus(ctx context.Context, c *models.Coupon, res lifecycle.Result) error {
	now := time.Now().UTC()
	_, err := s.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.CouponsTableName),
		Key:                 map[string]types.AttributeValue{"id": stringAV(c.Id)},
		UpdateExpression:    aws.String(evaluationUpdate),
		ConditionExpression: aws.String("version = :version"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: evaluationValues(res, c.Version, now),
	})
	if err != nil {
		if isConditionFailed(err) {
			return storage.ErrVersionConflict
		}
		return fmt.Errorf("failed to apply coupon status: %w", err)
	}
	res.Apply(c)
	c.Version++
	c.UpdatedAt = now
	return nil
}

const evaluationUpdate = "SET #status = :status, used_value = :used, notified_used = :notified_used, notified_expired = :notified_expired, updated_at = :now, version = version + :inc"

func evaluationValues(res lifecycle.Result, version int64, now time.Time) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		":status":           stringAV(string(res.Status)),
		":used":             numberAV(res.UsedValue),
		":notified_used":    boolAV(res.NotifiedUsed),
		":notified_expired": boolAV(res.NotifiedExpired),
		":now":              timeAV(now),
		":inc":              numberAV(1),
		":version":          numberAV(version),
	}
}
