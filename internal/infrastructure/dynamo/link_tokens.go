package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-telegram-otp/internal/domain"
)

// LinkTokenRepo stores pending link tokens.
// PK: token, GSI: user_id-index, TTL: expires_at.
type LinkTokenRepo struct {
	client    API
	tableName string
}

func NewLinkTokenRepo(client API, tableName string) *LinkTokenRepo {
	return &LinkTokenRepo{client: client, tableName: tableName}
}

// Create stores a new token. A token collision returns domain.ErrConflict.
func (r *LinkTokenRepo) Create(ctx context.Context, p *domain.PendingLink) error {
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal link token: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#t)"),
		ExpressionAttributeNames: map[string]string{"#t": fieldToken},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("link token exists: %w", domain.ErrConflict)
	}
	if err != nil {
		return storeErr("put link token", err)
	}
	return nil
}

// Get returns the token record even if it is past its TTL; callers check Expired.
func (r *LinkTokenRepo) Get(ctx context.Context, token string) (*domain.PendingLink, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldToken, token),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, storeErr("get link token", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("link token: %w", domain.ErrTokenNotFound)
	}
	var p domain.PendingLink
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ActiveForUser returns a non-expired token issued to userID. The GSI is
// eventually consistent, so a token created a moment ago may be missed.
func (r *LinkTokenRepo) ActiveForUser(ctx context.Context, userID string, now time.Time) (*domain.PendingLink, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(indexLinkTokensByUser),
		KeyConditionExpression: aws.String("#u = :uid"),
		FilterExpression:       aws.String("#e > :now"),
		ExpressionAttributeNames: map[string]string{
			"#u": fieldUserID,
			"#e": fieldExpiresAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": strVal(userID),
			":now": numVal(now.Unix()),
		},
	})
	if err != nil {
		return nil, storeErr("query link tokens by user", err)
	}
	var links []domain.PendingLink
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &links); err != nil {
		return nil, err
	}
	// Prefer the token with the most life left.
	var best *domain.PendingLink
	for i := range links {
		if best == nil || links[i].ExpiresAt > best.ExpiresAt {
			best = &links[i]
		}
	}
	if best == nil {
		return nil, fmt.Errorf("active link token: %w", domain.ErrNotFound)
	}
	return best, nil
}

// Delete removes the token and reports whether this call removed it.
// DeleteItem with ALL_OLD makes this an atomic delete-if-exists.
func (r *LinkTokenRepo) Delete(ctx context.Context, token string) (bool, error) {
	out, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(r.tableName),
		Key:          strKey(fieldToken, token),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return false, storeErr("delete link token", err)
	}
	return len(out.Attributes) > 0, nil
}

// ListActive scans every token that has not expired yet.
func (r *LinkTokenRepo) ListActive(ctx context.Context, now time.Time) ([]domain.PendingLink, error) {
	var links []domain.PendingLink
	input := &dynamodb.ScanInput{
		TableName:                 aws.String(r.tableName),
		FilterExpression:          aws.String("#e > :now"),
		ExpressionAttributeNames:  map[string]string{"#e": fieldExpiresAt},
		ExpressionAttributeValues: map[string]types.AttributeValue{":now": numVal(now.Unix())},
	}
	for {
		out, err := r.client.Scan(ctx, input)
		if err != nil {
			return nil, storeErr("scan link tokens", err)
		}
		var page []domain.PendingLink
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		links = append(links, page...)
		if len(out.LastEvaluatedKey) == 0 {
			return links, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}
