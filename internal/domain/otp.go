package domain

import "time"

// OTPRecord is the single outstanding one-time passcode of a user.
// PK: user_id. Only the SHA-256 digest of the code is stored.
type OTPRecord struct {
	UserID     string    `json:"user_id" dynamodbav:"user_id"`
	HashedCode string    `json:"-" dynamodbav:"hashed_code"`
	Attempts   int       `json:"attempts" dynamodbav:"attempts"`
	CreatedAt  time.Time `json:"created_at" dynamodbav:"created_at"`
	ExpiresAt  int64     `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix seconds)
}

func (o *OTPRecord) Expired(now time.Time) bool {
	return now.Unix() >= o.ExpiresAt
}
