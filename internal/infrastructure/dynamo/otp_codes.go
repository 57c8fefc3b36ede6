package dynamo

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-telegram-otp/internal/domain"
)

// OTPRepo stores the outstanding passcode per user.
// PK: user_id, TTL: expires_at.
type OTPRepo struct {
	client    API
	tableName string
}

func NewOTPRepo(client API, tableName string) *OTPRepo {
	return &OTPRepo{client: client, tableName: tableName}
}

// Put replaces any previous code for the user.
func (r *OTPRepo) Put(ctx context.Context, o *domain.OTPRecord) error {
	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		return fmt.Errorf("marshal otp: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return storeErr("put otp", err)
	}
	return nil
}

func (r *OTPRepo) Get(ctx context.Context, userID string) (*domain.OTPRecord, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldUserID, userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, storeErr("get otp", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("otp: %w", domain.ErrNotFound)
	}
	var o domain.OTPRecord
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// Delete is idempotent.
func (r *OTPRepo) Delete(ctx context.Context, userID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldUserID, userID),
	})
	if err != nil {
		return storeErr("delete otp", err)
	}
	return nil
}

// Consume deletes the record only if it still holds hashedCode and reports
// whether this call removed it. Of two concurrent verifications one wins; a
// code replaced by a newer request is never consumed.
func (r *OTPRepo) Consume(ctx context.Context, userID, hashedCode string) (bool, error) {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldUserID, userID),
		ConditionExpression:       aws.String("#h = :h"),
		ExpressionAttributeNames:  map[string]string{"#h": fieldHashedCode},
		ExpressionAttributeValues: map[string]types.AttributeValue{":h": strVal(hashedCode)},
	})
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, storeErr("consume otp", err)
	}
	return true, nil
}

// IncrementAttempts records a wrong guess against the code identified by
// hashedCode and returns the new count. A record that vanished or was
// replaced in the meantime returns domain.ErrNotFound.
func (r *OTPRepo) IncrementAttempts(ctx context.Context, userID, hashedCode string) (int, error) {
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(fieldUserID, userID),
		UpdateExpression:    aws.String("ADD #a :one"),
		ConditionExpression: aws.String("#h = :h"),
		ExpressionAttributeNames: map[string]string{
			"#a": fieldAttempts,
			"#h": fieldHashedCode,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": numVal(1),
			":h":   strVal(hashedCode),
		},
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if isConditionFailed(err) {
		return 0, fmt.Errorf("otp: %w", domain.ErrNotFound)
	}
	if err != nil {
		return 0, storeErr("increment otp attempts", err)
	}
	n, ok := out.Attributes[fieldAttempts].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("increment otp attempts: missing %s in response", fieldAttempts)
	}
	attempts, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("increment otp attempts: %w", err)
	}
	return attempts, nil
}
