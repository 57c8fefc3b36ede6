package dynamo

// DynamoDB attribute names used in key, condition and update expressions.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldToken             = "token"
	fieldUserID            = "user_id"
	fieldChannelIdentityID = "channel_identity_id"
	fieldChannelAddress    = "channel_address"
	fieldExpiresAt         = "expires_at"
	fieldHashedCode        = "hashed_code"
	fieldAttempts          = "attempts"
	fieldUpdatedAt         = "updated_at"
)

const (
	indexLinkTokensByUser = "user_id-index"
)
