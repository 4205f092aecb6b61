package dynamodb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chris/coupon-exchange/pkg/lifecycle"
	"github.com/chris/coupon-exchange/pkg/models"
	"github.com/chris/coupon-exchange/pkg/storage"
)

// CompleteTransaction performs the final atomic write of a sale: the transaction becomes
// COMPLETED and the coupon moves to the buyer. The coupon is read first and written back
// conditioned on that version and on still being reserved for tx, so a retry after a crash
// or a concurrent confirmation cannot transfer it twice, and usage reconciled after the read
// cannot slip into the sale.
func (s *Store) CompleteTransaction(ctx context.Context, tx *models.Transaction, from models.TransactionStatus, eval lifecycle.EvaluateFunc) (*models.Coupon, lifecycle.Result, error) {
	c, err := s.GetCoupon(ctx, tx.CouponId)
	if err != nil {
		return nil, lifecycle.Result{}, fmt.Errorf("failed to get coupon for completion: %w", err)
	}
	if c.PendingTransactionId != tx.Id || c.OwnerId != tx.SellerId {
		return nil, lifecycle.Result{}, storage.ErrVersionConflict
	}
	if c.UsedValue != tx.UsedValueAtRequest {
		return nil, lifecycle.Result{}, storage.ErrCouponBalanceChanged
	}
	readVersion := c.Version

	c.OwnerId = tx.BuyerId
	c.Cost = tx.AskingPrice
	c.AskingPrice = 0
	c.IsForSale = false
	c.IsAvailable = true
	c.PendingTransactionId = ""
	res := eval(*c, c.UsedValue)
	res.Apply(c)
	c.Version = readVersion + 1
	c.UpdatedAt = tx.UpdatedAt

	couponAV, err := attributevalue.MarshalMap(c)
	if err != nil {
		return nil, lifecycle.Result{}, fmt.Errorf("failed to marshal coupon: %w", err)
	}
	txPut, err := s.transactionPut(tx, from)
	if err != nil {
		return nil, lifecycle.Result{}, err
	}

	input := &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				// Operation 1: Move the transaction to COMPLETED.
				Put: txPut,
			},
			{
				// Operation 2: Transfer the coupon to the buyer.
				Put: &types.Put{
					TableName:           aws.String(s.CouponsTableName),
					Item:                couponAV,
					ConditionExpression: aws.String("version = :version AND pending_transaction_id = :tx"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":version": numberAV(readVersion),
						":tx":      stringAV(tx.Id),
					},
				},
			},
		},
	}

	if _, err := s.Client.TransactWriteItems(ctx, input); err != nil {
		if failed, ok := failedConditions(err); ok && len(failed) > 0 {
			if failed[0] == 0 {
				return nil, lifecycle.Result{}, storage.ErrStaleTransaction
			}
			return nil, lifecycle.Result{}, storage.ErrVersionConflict
		}
		return nil, lifecycle.Result{}, fmt.Errorf("failed to execute completion transaction: %w", err)
	}

	tx.Version++
	return c, res, nil
}
