package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-notify-api/internal/domain"
)

// AttemptLogRepo provides typed DynamoDB operations for the attempt log table.
type AttemptLogRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewAttemptLogRepo(client *dynamodb.Client, tableName string) *AttemptLogRepo {
	return &AttemptLogRepo{client: client, tableName: tableName}
}

func (r *AttemptLogRepo) Put(ctx context.Context, l *domain.AttemptLog) error {
	item, err := marshalItem(l)
	if err != nil {
		return fmt.Errorf("marshal attempt log: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *AttemptLogRepo) Update(ctx context.Context, logID string, updates map[string]interface{}) error {
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("log_id", logID),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return err
}

// ListByNotification returns all attempt rows for a record, newest first.
func (r *AttemptLogRepo) ListByNotification(ctx context.Context, notificationID string) ([]domain.AttemptLog, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("notification_id-index"),
		KeyConditionExpression: aws.String("notification_id = :nid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":nid": &types.AttributeValueMemberS{Value: notificationID},
		},
		ScanIndexForward: aws.Bool(false),
	})
	if err != nil {
		return nil, err
	}
	var logs []domain.AttemptLog
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}
