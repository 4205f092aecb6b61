package dynamodb

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chris/coupon-exchange/pkg/models"
	"github.com/chris/coupon-exchange/pkg/storage"
)

// CreateTransaction takes the coupon off the market and creates the transaction record in one
// TransactWriteItems call. The coupon update only succeeds while the coupon is ACTIVE, listed,
// available, owned by the seller, still at tx.UsedValueAtRequest and has no pending transaction,
// so of two racing buyers the second one fails the condition.
func (s *Store) CreateTransaction(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	slog.Log(ctx, slog.LevelDebug, "creating transaction", "transaction_id", tx.Id, "coupon_id", tx.CouponId)

	txAV, err := attributevalue.MarshalMap(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction: %w", err)
	}

	input := &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				// Operation 1: Reserve the coupon for this transaction.
				Update: &types.Update{
					TableName:        aws.String(s.CouponsTableName),
					Key:              map[string]types.AttributeValue{"id": stringAV(tx.CouponId)},
					UpdateExpression: aws.String("SET is_available = :false, pending_transaction_id = :tx, updated_at = :now, version = version + :inc"),
					ConditionExpression: aws.String("#status = :active AND is_for_sale = :true AND is_available = :true " +
						"AND owner_id = :seller AND used_value = :used AND attribute_not_exists(pending_transaction_id)"),
					ExpressionAttributeNames: map[string]string{
						"#status": "status",
					},
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":false":  boolAV(false),
						":true":   boolAV(true),
						":tx":     stringAV(tx.Id),
						":now":    timeAV(tx.CreatedAt),
						":inc":    numberAV(1),
						":active": stringAV(string(models.ACTIVE)),
						":seller": stringAV(tx.SellerId),
						":used":   numberAV(tx.UsedValueAtRequest),
					},
				},
			},
			{
				// Operation 2: Create the transaction record.
				Put: &types.Put{
					TableName:           aws.String(s.TransactionsTableName),
					Item:                txAV,
					ConditionExpression: aws.String("attribute_not_exists(id)"),
				},
			},
		},
	}

	if _, err := s.Client.TransactWriteItems(ctx, input); err != nil {
		if failed, ok := failedConditions(err); ok && slices.Contains(failed, 0) {
			return nil, storage.ErrCouponUnavailable
		}
		return nil, fmt.Errorf("failed to execute transaction: %w", err)
	}
	return tx, nil
}
