package domain

import "time"

// PendingLink is a single-use token waiting to be activated from Telegram.
// PK: token. GSI: user_id-index.
// ExpiresAt is a Unix timestamp used as DynamoDB TTL.
type PendingLink struct {
	Token     string    `json:"token" dynamodbav:"token"`
	UserID    string    `json:"user_id" dynamodbav:"user_id"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"created_at"`
	ExpiresAt int64     `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix seconds)
}

// Expired reports whether the token is past its TTL. DynamoDB deletes expired
// items lazily, so readers must check this themselves.
func (p *PendingLink) Expired(now time.Time) bool {
	return now.Unix() >= p.ExpiresAt
}

// IdentityLink maps an application user to a Telegram identity.
// PK: user_id. The channel_identities table holds the reverse claim.
type IdentityLink struct {
	LinkID            string    `json:"link_id" dynamodbav:"link_id"`
	UserID            string    `json:"user_id" dynamodbav:"user_id"`
	ChannelIdentityID string    `json:"channel_identity_id" dynamodbav:"channel_identity_id"`
	ChannelAddress    string    `json:"channel_address" dynamodbav:"channel_address"`
	LinkedAt          time.Time `json:"linked_at" dynamodbav:"linked_at"`
	UpdatedAt         time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

// ChannelClaim reserves a channel identity for exactly one user.
type ChannelClaim struct {
	ChannelIdentityID string `dynamodbav:"channel_identity_id"`
	UserID            string `dynamodbav:"user_id"`
}
