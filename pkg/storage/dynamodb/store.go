package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chris/coupon-exchange/pkg/storage"
)

// Index names.
const (
	ownerIDIndex       = "owner_id-index"
	couponStatusIndex  = "status-index"
	buyerIDIndex       = "buyer_id-index"
	sellerIDIndex      = "seller_id-index"
	stalledTxIndex     = "status-updated_at-index"
	connectionUserIdx  = "user_id-index"
	conditionCheckFail = "ConditionalCheckFailed"
)

// DynamoDBAPI is the subset of the DynamoDB client the store uses.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Tables names every table the store writes to.
type Tables struct {
	Coupons       string
	Ledger        string
	Transactions  string
	Notifications string
	Connections   string
}

// Store implements the Storage interface using AWS DynamoDB. Every multi-record write is a
// single TransactWriteItems call guarded by condition expressions.
type Store struct {
	Client                 DynamoDBAPI
	CouponsTableName       string
	LedgerTableName        string
	TransactionsTableName  string
	NotificationsTableName string
	ConnectionsTableName   string
}

// New creates a new Store.
func New(client DynamoDBAPI, tables Tables) *Store {
	return &Store{
		Client:                 client,
		CouponsTableName:       tables.Coupons,
		LedgerTableName:        tables.Ledger,
		TransactionsTableName:  tables.Transactions,
		NotificationsTableName: tables.Notifications,
		ConnectionsTableName:   tables.Connections,
	}
}

// Make sure we conform to the interface
var _ storage.Storage = (*Store)(nil)

// queryAll follows LastEvaluatedKey until the query is exhausted and unmarshals every item.
func queryAll[T any](ctx context.Context, client DynamoDBAPI, input *dynamodb.QueryInput) ([]T, error) {
	var out []T
	for {
		page, err := client.Query(ctx, input)
		if err != nil {
			return nil, err
		}
		var items []T
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal query results: %w", err)
		}
		out = append(out, items...)
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
}

// failedConditions returns the indexes of the TransactWriteItems operations whose condition
// failed, or ok=false when err is not a cancelled transaction.
func failedConditions(err error) (indexes []int, ok bool) {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return nil, false
	}
	for i, reason := range tce.CancellationReasons {
		if aws.ToString(reason.Code) == conditionCheckFail {
			indexes = append(indexes, i)
		}
	}
	return indexes, true
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func stringAV(s string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: s}
}

func numberAV(n int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func boolAV(b bool) types.AttributeValue {
	return &types.AttributeValueMemberBOOL{Value: b}
}

// timeAV formats t the way attributevalue marshals time.Time, so stored and compared values agree.
func timeAV(t time.Time) types.AttributeValue {
	return stringAV(t.UTC().Format(time.RFC3339Nano))
}
