package dynamo

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-notify-api/internal/domain"
)

// NotificationRepo provides typed DynamoDB operations for the scheduled
// notifications table plus the fingerprint dedupe table.
type NotificationRepo struct {
	client      *dynamodb.Client
	tableName   string
	dedupeTable string
}

func NewNotificationRepo(client *dynamodb.Client, tableName, dedupeTable string) *NotificationRepo {
	return &NotificationRepo{client: client, tableName: tableName, dedupeTable: dedupeTable}
}

// Create persists a new record and reserves its idempotency key in the same
// transaction. A duplicate fingerprint fails the guard item's condition and
// surfaces as domain.ErrConflict — duplicate submissions are rejected at
// creation, never silently absorbed later.
func (r *NotificationRepo) Create(ctx context.Context, n *domain.ScheduledNotification) error {
	item, err := marshalItem(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName: aws.String(r.tableName),
					Item:      item,
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(r.dedupeTable),
					Item:                strKey("idempotency_key", n.IdempotencyKey),
					ConditionExpression: aws.String("attribute_not_exists(idempotency_key)"),
				},
			},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return fmt.Errorf("idempotency key already used: %w", domain.ErrConflict)
		}
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (r *NotificationRepo) Get(ctx context.Context, notificationID string) (*domain.ScheduledNotification, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("notification_id", notificationID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("notification %s: %w", notificationID, domain.ErrNotFound)
	}
	var n domain.ScheduledNotification
	if err := attributevalue.UnmarshalMap(out.Item, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// ClaimAttempt puts the record in flight for the next attempt, conditioned on
// both the state and the attempts counter the caller read. State alone is not
// enough: a stuck QUEUED record is re-claimed QUEUED -> QUEUED, which leaves
// the state unchanged — the attempts condition guarantees every claim still
// changes a compared attribute, so of N concurrent claimants exactly one wins
// and the rest get domain.ErrConflict.
func (r *NotificationRepo) ClaimAttempt(ctx context.Context, notificationID string, expected domain.State, expectedAttempts int) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		"state":      domain.StateQueued,
		"attempts":   expectedAttempts + 1,
		"updated_at": formatTime(time.Now()),
	})
	if err != nil {
		return err
	}
	ue.Names["#state"] = "state"
	ue.Values[":expected"] = &types.AttributeValueMemberS{Value: string(expected)}
	ue.Values[":expectedAttempts"] = &types.AttributeValueMemberN{Value: strconv.Itoa(expectedAttempts)}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("notification_id", notificationID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(notification_id) AND #state = :expected AND attempts = :expectedAttempts"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return fmt.Errorf("attempt claimed concurrently: %w", domain.ErrConflict)
		}
		return fmt.Errorf("claim attempt: %w", err)
	}
	return nil
}

// CompareAndUpdate applies updates only when the record's current state
// matches expected. A lost race returns domain.ErrConflict. Together with
// ClaimAttempt this conditional write is the sole concurrency-correctness
// mechanism for same-record attempts.
func (r *NotificationRepo) CompareAndUpdate(ctx context.Context, notificationID string, expected domain.State, updates map[string]interface{}) error {
	updates["updated_at"] = formatTime(time.Now())
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	ue.Names["#state"] = "state"
	ue.Values[":expected"] = &types.AttributeValueMemberS{Value: string(expected)}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("notification_id", notificationID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(notification_id) AND #state = :expected"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return fmt.Errorf("state changed concurrently: %w", domain.ErrConflict)
		}
		return fmt.Errorf("update notification: %w", err)
	}
	return nil
}

func (r *NotificationRepo) FindByIdempotencyKey(ctx context.Context, key string) (*domain.ScheduledNotification, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("idempotency_key-index"),
		KeyConditionExpression: aws.String("idempotency_key = :k"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":k": &types.AttributeValueMemberS{Value: key},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("idempotency key: %w", domain.ErrNotFound)
	}
	var n domain.ScheduledNotification
	if err := attributevalue.UnmarshalMap(out.Items[0], &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// ListDue queries the state-index for records in state whose effective
// instant is at or before the given time. Used by the sweeper to recover
// records whose in-memory timers were lost.
func (r *NotificationRepo) ListDue(ctx context.Context, state domain.State, before time.Time) ([]domain.ScheduledNotification, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                aws.String(r.tableName),
		IndexName:                aws.String("state-index"),
		KeyConditionExpression:   aws.String("#state = :s AND effective_send_at <= :t"),
		ExpressionAttributeNames: map[string]string{"#state": "state"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s": &types.AttributeValueMemberS{Value: string(state)},
			":t": &types.AttributeValueMemberS{Value: formatTime(before)},
		},
	})
	if err != nil {
		return nil, err
	}
	var notifications []domain.ScheduledNotification
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// ListStuckQueued returns QUEUED records last touched before updatedBefore —
// rows abandoned by a crashed worker mid-attempt.
func (r *NotificationRepo) ListStuckQueued(ctx context.Context, updatedBefore time.Time) ([]domain.ScheduledNotification, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                aws.String(r.tableName),
		IndexName:                aws.String("state-index"),
		KeyConditionExpression:   aws.String("#state = :s"),
		FilterExpression:         aws.String("updated_at < :t"),
		ExpressionAttributeNames: map[string]string{"#state": "state"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s": &types.AttributeValueMemberS{Value: string(domain.StateQueued)},
			":t": &types.AttributeValueMemberS{Value: formatTime(updatedBefore)},
		},
	})
	if err != nil {
		return nil, err
	}
	var notifications []domain.ScheduledNotification
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// ScanPage returns a page of notifications.
// cursor is a base64-encoded notification_id used as ExclusiveStartKey.
// Returns the items, a next cursor (empty string when no more pages), and any error.
func (r *NotificationRepo) ScanPage(ctx context.Context, limit int32, cursor string) ([]domain.ScheduledNotification, string, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(r.tableName),
		Limit:     aws.Int32(limit),
	}
	if cursor != "" {
		notificationID, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", domain.ErrBadRequest)
		}
		input.ExclusiveStartKey = strKey("notification_id", notificationID)
	}
	out, err := r.client.Scan(ctx, input)
	if err != nil {
		return nil, "", err
	}
	var notifications []domain.ScheduledNotification
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &notifications); err != nil {
		return nil, "", err
	}
	nextCursor := ""
	if v, ok := out.LastEvaluatedKey["notification_id"].(*types.AttributeValueMemberS); ok {
		nextCursor = encodeCursor(v.Value)
	}
	return notifications, nextCursor, nil
}

func encodeCursor(notificationID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(notificationID))
}

func decodeCursor(cursor string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
