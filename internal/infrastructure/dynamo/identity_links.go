package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-telegram-otp/internal/domain"
)

// IdentityLinkRepo stores confirmed user <-> Telegram links.
//
// identity_links (PK user_id) holds the link; channel_identities
// (PK channel_identity_id) holds a claim row so a Telegram identity can be
// owned by one user only. Both are written in one transaction.
type IdentityLinkRepo struct {
	client         API
	linksTable     string
	claimsTable    string
	linkTokenTable string
}

func NewIdentityLinkRepo(client API, linksTable, claimsTable, linkTokenTable string) *IdentityLinkRepo {
	return &IdentityLinkRepo{
		client:         client,
		linksTable:     linksTable,
		claimsTable:    claimsTable,
		linkTokenTable: linkTokenTable,
	}
}

func (r *IdentityLinkRepo) GetByUser(ctx context.Context, userID string) (*domain.IdentityLink, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.linksTable),
		Key:            strKey(fieldUserID, userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, storeErr("get identity link", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("identity link: %w", domain.ErrNotFound)
	}
	var l domain.IdentityLink
	if err := attributevalue.UnmarshalMap(out.Item, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// GetByChannelIdentity resolves the claim row, then the link it points to.
func (r *IdentityLinkRepo) GetByChannelIdentity(ctx context.Context, channelIdentityID string) (*domain.IdentityLink, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.claimsTable),
		Key:            strKey(fieldChannelIdentityID, channelIdentityID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, storeErr("get channel claim", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("channel claim: %w", domain.ErrNotFound)
	}
	var c domain.ChannelClaim
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, err
	}
	return r.GetByUser(ctx, c.UserID)
}

// Link consumes token and creates the link and its channel claim atomically.
// Cancellation maps to domain.ErrTokenNotFound (token gone or expired),
// domain.ErrUserAlreadyLinked or domain.ErrChannelAlreadyLinked, checked in
// that order.
func (r *IdentityLinkRepo) Link(ctx context.Context, l *domain.IdentityLink, token string) error {
	linkItem, err := attributevalue.MarshalMap(l)
	if err != nil {
		return fmt.Errorf("marshal identity link: %w", err)
	}
	claimItem, err := attributevalue.MarshalMap(domain.ChannelClaim{
		ChannelIdentityID: l.ChannelIdentityID,
		UserID:            l.UserID,
	})
	if err != nil {
		return fmt.Errorf("marshal channel claim: %w", err)
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Delete: &types.Delete{
				TableName:           aws.String(r.linkTokenTable),
				Key:                 strKey(fieldToken, token),
				ConditionExpression: aws.String("attribute_exists(#t) AND #e > :now AND #u = :uid"),
				ExpressionAttributeNames: map[string]string{
					"#t": fieldToken,
					"#e": fieldExpiresAt,
					"#u": fieldUserID,
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":now": numVal(l.LinkedAt.Unix()),
					":uid": strVal(l.UserID),
				},
			}},
			{Put: &types.Put{
				TableName:                aws.String(r.linksTable),
				Item:                     linkItem,
				ConditionExpression:      aws.String("attribute_not_exists(#u)"),
				ExpressionAttributeNames: map[string]string{"#u": fieldUserID},
			}},
			{Put: &types.Put{
				TableName:                aws.String(r.claimsTable),
				Item:                     claimItem,
				ConditionExpression:      aws.String("attribute_not_exists(#c)"),
				ExpressionAttributeNames: map[string]string{"#c": fieldChannelIdentityID},
			}},
		},
	})
	if err == nil {
		return nil
	}
	if failed, ok := cancelledAt(err); ok {
		switch {
		case len(failed) > 0 && failed[0]:
			return fmt.Errorf("link identity: %w", domain.ErrTokenNotFound)
		case len(failed) > 1 && failed[1]:
			return fmt.Errorf("link identity: %w", domain.ErrUserAlreadyLinked)
		case len(failed) > 2 && failed[2]:
			return fmt.Errorf("link identity: %w", domain.ErrChannelAlreadyLinked)
		}
	}
	return storeErr("link identity", err)
}

// UpdateAddress refreshes where messages for userID are delivered.
func (r *IdentityLinkRepo) UpdateAddress(ctx context.Context, userID, address string) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldChannelAddress: address,
		fieldUpdatedAt:      nowRFC3339(),
	})
	if err != nil {
		return err
	}
	ue.Names["#pk"] = fieldUserID
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.linksTable),
		Key:                       strKey(fieldUserID, userID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return fmt.Errorf("identity link: %w", domain.ErrNotFound)
	}
	if err != nil {
		return storeErr("update channel address", err)
	}
	return nil
}

// Delete removes the link and its claim. It reports false when no link existed.
func (r *IdentityLinkRepo) Delete(ctx context.Context, userID string) (bool, error) {
	l, err := r.GetByUser(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Delete: &types.Delete{
				TableName:                aws.String(r.linksTable),
				Key:                      strKey(fieldUserID, userID),
				ConditionExpression:      aws.String("attribute_exists(#u)"),
				ExpressionAttributeNames: map[string]string{"#u": fieldUserID},
			}},
			{Delete: &types.Delete{
				TableName:           aws.String(r.claimsTable),
				Key:                 strKey(fieldChannelIdentityID, l.ChannelIdentityID),
				ConditionExpression: aws.String("attribute_not_exists(#c) OR #u = :uid"),
				ExpressionAttributeNames: map[string]string{
					"#c": fieldChannelIdentityID,
					"#u": fieldUserID,
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{":uid": strVal(userID)},
			}},
		},
	})
	if failed, ok := cancelledAt(err); ok && len(failed) > 0 && failed[0] {
		// Unlinked concurrently.
		return false, nil
	}
	if err != nil {
		return false, storeErr("delete identity link", err)
	}
	return true, nil
}

// List scans every identity link.
func (r *IdentityLinkRepo) List(ctx context.Context) ([]domain.IdentityLink, error) {
	var links []domain.IdentityLink
	input := &dynamodb.ScanInput{TableName: aws.String(r.linksTable)}
	for {
		out, err := r.client.Scan(ctx, input)
		if err != nil {
			return nil, storeErr("scan identity links", err)
		}
		var page []domain.IdentityLink
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
