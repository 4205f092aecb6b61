package dynamodb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chris/coupon-exchange/pkg/models"
	"github.com/chris/coupon-exchange/pkg/storage"
)

var openStatuses = []models.TransactionStatus{
	models.REQUESTED,
	models.SELLER_APPROVED,
	models.AWAITING_BUYER_CONFIRM,
	models.AWAITING_SELLER_CONFIRM,
}

// GetTransaction retrieves a transaction from DynamoDB by its ID.
func (s *Store) GetTransaction(ctx context.Context, txID string) (*models.Transaction, error) {
	result, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.TransactionsTableName),
		Key:            map[string]types.AttributeValue{"id": stringAV(txID)},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction from DynamoDB: %w", err)
	}
	if result.Item == nil {
		return nil, fmt.Errorf("transaction %s: %w", txID, storage.ErrNotFound)
	}

	var tx models.Transaction
	if err := attributevalue.UnmarshalMap(result.Item, &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}
	return &tx, nil
}

// ListTransactionsByUser merges the buyer and seller indexes, newest first.
func (s *Store) ListTransactionsByUser(ctx context.Context, userID string) ([]models.Transaction, error) {
	var all []models.Transaction
	for _, index := range []struct{ name, attr string }{
		{buyerIDIndex, "buyer_id"},
		{sellerIDIndex, "seller_id"},
	} {
		txs, err := queryAll[models.Transaction](ctx, s.Client, &dynamodb.QueryInput{
			TableName:              aws.String(s.TransactionsTableName),
			IndexName:              aws.String(index.name),
			KeyConditionExpression: aws.String(index.attr + " = :user"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":user": stringAV(userID),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query transactions by %s: %w", index.attr, err)
		}
		all = append(all, txs...)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return all, nil
}

// ListStalledTransactions queries the status-updated_at index once per open status.
func (s *Store) ListStalledTransactions(ctx context.Context, cutoff time.Time) ([]models.Transaction, error) {
	var stalled []models.Transaction
	for _, status := range openStatuses {
		txs, err := queryAll[models.Transaction](ctx, s.Client, &dynamodb.QueryInput{
			TableName:              aws.String(s.TransactionsTableName),
			IndexName:              aws.String(stalledTxIndex),
			KeyConditionExpression: aws.String("#status = :status AND updated_at < :cutoff"),
			ExpressionAttributeNames: map[string]string{
				"#status": "status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":status": stringAV(string(status)),
				":cutoff": timeAV(cutoff),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query for stalled transactions: %w", err)
		}
		stalled = append(stalled, txs...)
	}
	return stalled, nil
}

// UpdateTransaction overwrites the transaction if it still has the expected status and version.
func (s *Store) UpdateTransaction(ctx context.Context, tx *models.Transaction, from models.TransactionStatus) error {
	put, err := s.transactionPut(tx, from)
	if err != nil {
		return err
	}
	if _, err := s.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 put.TableName,
		Item:                      put.Item,
		ConditionExpression:       put.ConditionExpression,
		ExpressionAttributeNames:  put.ExpressionAttributeNames,
		ExpressionAttributeValues: put.ExpressionAttributeValues,
	}); err != nil {
		if isConditionFailed(err) {
			return storage.ErrStaleTransaction
		}
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	tx.Version++
	return nil
}

// ProvisionCode writes the transaction and, when a replacement is given, the coupon secret.
func (s *Store) ProvisionCode(ctx context.Context, tx *models.Transaction, from models.TransactionStatus, sealedSecret string) error {
	if sealedSecret == "" {
		return s.UpdateTransaction(ctx, tx, from)
	}

	put, err := s.transactionPut(tx, from)
	if err != nil {
		return err
	}
	input := &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: put},
			{
				Update: &types.Update{
					TableName:           aws.String(s.CouponsTableName),
					Key:                 map[string]types.AttributeValue{"id": stringAV(tx.CouponId)},
					UpdateExpression:    aws.String("SET secret = :secret, updated_at = :now, version = version + :inc"),
					ConditionExpression: aws.String("pending_transaction_id = :tx"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":secret": stringAV(sealedSecret),
						":now":    timeAV(tx.UpdatedAt),
						":inc":    numberAV(1),
						":tx":     stringAV(tx.Id),
					},
				},
			},
		},
	}
	if _, err := s.Client.TransactWriteItems(ctx, input); err != nil {
		if failed, ok := failedConditions(err); ok && len(failed) > 0 {
			return storage.ErrStaleTransaction
		}
		return fmt.Errorf("failed to provision coupon code: %w", err)
	}
	tx.Version++
	return nil
}

// ReleaseTransaction writes the terminal transaction and returns the coupon to the market.
func (s *Store) ReleaseTransaction(ctx context.Context, tx *models.Transaction, from models.TransactionStatus) error {
	put, err := s.transactionPut(tx, from)
	if err != nil {
		return err
	}
	input := &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: put},
			{
				Update: &types.Update{
					TableName:           aws.String(s.CouponsTableName),
					Key:                 map[string]types.AttributeValue{"id": stringAV(tx.CouponId)},
					UpdateExpression:    aws.String("SET is_available = :true, updated_at = :now, version = version + :inc REMOVE pending_transaction_id"),
					ConditionExpression: aws.String("pending_transaction_id = :tx"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":true": boolAV(true),
						":now":  timeAV(tx.UpdatedAt),
						":inc":  numberAV(1),
						":tx":   stringAV(tx.Id),
					},
				},
			},
		},
	}
	if _, err := s.Client.TransactWriteItems(ctx, input); err != nil {
		if failed, ok := failedConditions(err); ok && len(failed) > 0 {
			return storage.ErrStaleTransaction
		}
		return fmt.Errorf("failed to release transaction: %w", err)
	}
	tx.Version++
	return nil
}

// transactionPut builds a Put of tx at the next version, conditioned on the stored status and version.
func (s *Store) transactionPut(tx *models.Transaction, from models.TransactionStatus) (*types.Put, error) {
	next := *tx
	next.Version = tx.Version + 1
	av, err := attributevalue.MarshalMap(next)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction: %w", err)
	}
	return &types.Put{
		TableName:           aws.String(s.TransactionsTableName),
		Item:                av,
		ConditionExpression: aws.String("#status = :from AND version = :version"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":from":    stringAV(string(from)),
			":version": numberAV(tx.Version),
		},
	}, nil
}
