package domain

// Session is the authoritative record of a logged-in user, serialized as JSON
// under a TTL key in the key/value store. Timestamps are epoch seconds.
//
// A session is valid only while both its primary record and its idle marker
// exist; the store's TTL mechanism is the sole expiry authority.
type Session struct {
	SessionID    string `json:"id"`
	Username     string `json:"username"`
	UserID       string `json:"user_id"`
	Role         string `json:"role"`
	Email        string `json:"email"`
	CreatedAt    int64  `json:"created_at"`
	LastActivity int64  `json:"last_activity"`
}
