// Package storage persists day records in DynamoDB.
//
// Single-table layout: every record shares the constant partition key
// PK = "BOARD#daily" and the sort key SK carries the zero-padded
// YYYY-MM-DD date, so lexicographic key order matches chronological
// order. Range and LoadAll depend on that property, which is why the
// date format is asserted here at the boundary.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pharmaboard/highlights-api/highlights"
	"github.com/pharmaboard/highlights-api/interfaces"
)

// ErrNotFound reports that the addressed day record does not exist.
var ErrNotFound = errors.New("day record not found")

// boardPartition is the fixed partition key. The board is one small
// collection of day records, so a single partition keeps range queries
// trivial.
const boardPartition = "BOARD#daily"

var dateKeyRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// DynamoAPI is the subset of the DynamoDB client the store uses, kept
// narrow so tests can substitute a hand-built fake.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Store is the DynamoDB-backed day record store.
type Store struct {
	client DynamoAPI
	table  string
}

// Ensure Store implements the HighlightStore interface
var _ interfaces.HighlightStore = (*Store)(nil)

// NewStore creates a Store on an existing client.
func NewStore(client DynamoAPI, table string) *Store {
	return &Store{client: client, table: table}
}

// Connect builds a DynamoDB client from the ambient AWS configuration and
// returns a Store on it. A non-empty endpoint overrides the service
// endpoint for local development against dynamodb-local.
func Connect(ctx context.Context, region, endpoint, table string) (*Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return NewStore(client, table), nil
}

// Get returns the raw stored item for one date. The second return is false
// when no record exists. Items come back in the loose map shape the
// normalizer consumes, preserving whatever historical field layout was
// stored.
func (s *Store) Get(ctx context.Context, date string) (any, bool, error) {
	if err := checkDateKey(date); err != nil {
		return nil, false, err
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       dayKey(date),
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to get day %s: %w", date, err)
	}
	if len(out.Item) == 0 {
		return nil, false, nil
	}

	item, err := decodeRawItem(out.Item)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode day %s: %w", date, err)
	}
	return item, true, nil
}

// Put upserts the canonical day record, last write wins. The update
// expression rewrites the record content wholesale so a save fully
// replaces whatever shape was stored before it.
func (s *Store) Put(ctx context.Context, day highlights.DailyHighlight, updatedBy string) error {
	if err := checkDateKey(day.Date); err != nil {
		return err
	}

	update := expression.
		Set(expression.Name("date"), expression.Value(day.Date)).
		Set(expression.Name("drugs"), expression.Value(day.Drugs)).
		Set(expression.Name("updatedAt"), expression.Value(time.Now().UTC().Format(time.RFC3339))).
		Set(expression.Name("updatedBy"), expression.Value(updatedBy))

	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return fmt.Errorf("failed to build save expression: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       dayKey(day.Date),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return fmt.Errorf("failed to save day %s: %w", day.Date, err)
	}
	return nil
}

// Delete removes the day record. Returns ErrNotFound when no record
// exists so callers can tell a real delete from a no-op.
func (s *Store) Delete(ctx context.Context, date string) error {
	if err := checkDateKey(date); err != nil {
		return err
	}

	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeExists(expression.Name("PK"))).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build delete expression: %w", err)
	}

	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(s.table),
		Key:                       dayKey(date),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return fmt.Errorf("failed to delete day %s: %w", date, ErrNotFound)
		}
		return fmt.Errorf("failed to delete day %s: %w", date, err)
	}
	return nil
}

// Range returns the raw day records with start <= date <= end in
// ascending date order.
func (s *Store) Range(ctx context.Context, start, end string) ([]interfaces.RawDay, error) {
	if err := checkDateKey(start); err != nil {
		return nil, err
	}
	if err := checkDateKey(end); err != nil {
		return nil, err
	}

	keyCond := expression.Key("PK").Equal(expression.Value(boardPartition)).
		And(expression.Key("SK").Between(expression.Value(start), expression.Value(end)))

	days := make([]interfaces.RawDay, 0)
	err := s.queryPartition(ctx, keyCond, func(date string, item map[string]interface{}) {
		days = append(days, interfaces.RawDay{Date: date, Item: item})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query days %s to %s: %w", start, end, err)
	}
	return days, nil
}

// LoadAll returns every stored day record keyed by date. Used by the
// index refresh.
func (s *Store) LoadAll(ctx context.Context) (map[string]any, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(boardPartition))

	days := make(map[string]any)
	err := s.queryPartition(ctx, keyCond, func(date string, item map[string]interface{}) {
		days[date] = item
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load day records: %w", err)
	}
	return days, nil
}

// Ping verifies the table is reachable.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.table),
	})
	if err != nil {
		return fmt.Errorf("failed to reach table %s: %w", s.table, err)
	}
	return nil
}

// queryPartition runs a paginated ascending query and hands each decoded
// item to visit, keyed by the date taken from the sort key. The storage
// key is authoritative over any date carried inside the item.
func (s *Store) queryPartition(ctx context.Context, keyCond expression.KeyConditionBuilder, visit func(date string, item map[string]interface{})) error {
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return fmt.Errorf("failed to build query expression: %w", err)
	}

	var lastEvaluatedKey map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.table),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ScanIndexForward:          aws.Bool(true),
			ExclusiveStartKey:         lastEvaluatedKey,
		})
		if err != nil {
			return err
		}

		for _, attrs := range out.Items {
			date := stringAttr(attrs["SK"])
			item, err := decodeRawItem(attrs)
			if err != nil {
				return fmt.Errorf("failed to decode day %s: %w", date, err)
			}
			visit(date, item)
		}

		lastEvaluatedKey = out.LastEvaluatedKey
		if len(lastEvaluatedKey) == 0 {
			break
		}
	}
	return nil
}

// dayKey builds the composite key addressing one date.
func dayKey(date string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: boardPartition},
		"SK": &types.AttributeValueMemberS{Value: date},
	}
}

// decodeRawItem turns a stored item into the loose any-typed shape the
// normalizer consumes, with the table bookkeeping attributes stripped.
func decodeRawItem(attrs map[string]types.AttributeValue) (map[string]interface{}, error) {
	var item map[string]interface{}
	if err := attributevalue.UnmarshalMap(attrs, &item); err != nil {
		return nil, err
	}
	delete(item, "PK")
	delete(item, "SK")
	return item, nil
}

// stringAttr extracts a string attribute value, or "" for any other kind.
func stringAttr(attr types.AttributeValue) string {
	if s, ok := attr.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

// checkDateKey guards the lexicographic-order contract: only zero-padded
// dates may become sort keys.
func checkDateKey(date string) error {
	if !dateKeyRegex.MatchString(date) {
		return fmt.Errorf("invalid date key %q: expected YYYY-MM-DD", date)
	}
	return nil
}
