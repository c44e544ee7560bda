package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-notify-api/internal/domain"
)

// TemplateRepo provides typed DynamoDB operations for the templates table.
type TemplateRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewTemplateRepo(client *dynamodb.Client, tableName string) *TemplateRepo {
	return &TemplateRepo{client: client, tableName: tableName}
}

func (r *TemplateRepo) Put(ctx context.Context, t *domain.NotificationTemplate) error {
	item, err := marshalItem(t)
	if err != nil {
		return fmt.Errorf("marshal template: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *TemplateRepo) GetByKey(ctx context.Context, key string) (*domain.NotificationTemplate, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("template_key", key),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("template %s: %w", key, domain.ErrNotFound)
	}
	var t domain.NotificationTemplate
	if err := attributevalue.UnmarshalMap(out.Item, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetBySubject queries the subject-index GSI; subjects are unique so the
// first match wins.
func (r *TemplateRepo) GetBySubject(ctx context.Context, subject string) (*domain.NotificationTemplate, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                aws.String(r.tableName),
		IndexName:                aws.String("subject-index"),
		KeyConditionExpression:   aws.String("#s = :v"),
		ExpressionAttributeNames: map[string]string{"#s": "subject"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: subject},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("template subject %q: %w", subject, domain.ErrNotFound)
	}
	var t domain.NotificationTemplate
	if err := attributevalue.UnmarshalMap(out.Items[0], &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TemplateRepo) Scan(ctx context.Context) ([]domain.NotificationTemplate, error) {
	out, err := r.client.Scan(ctx, &dynamodb.ScanInput{TableName: aws.String(r.tableName)})
	if err != nil {
		return nil, err
	}
	var templates []domain.NotificationTemplate
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *TemplateRepo) Update(ctx context.Context, key string, updates map[string]interface{}) error {
	updates["updated_at"] = formatTime(time.Now())
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("template_key", key),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return err
}

// HardDelete permanently removes a template item.
func (r *TemplateRepo) HardDelete(ctx context.Context, key string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("template_key", key),
	})
	return err
}
