package domain

import "time"

// LoginEventType distinguishes how a login was completed.
type LoginEventType string

const (
	LoginEventPassword LoginEventType = "PASSWORD"
	LoginEventOTP      LoginEventType = "OTP"
)

// LoginEvent is an immutable audit entry describing one completed login.
type LoginEvent struct {
	Type      LoginEventType `json:"type"`
	SourceIP  string         `json:"source_ip"`
	UserAgent string         `json:"user_agent"`
	Timestamp time.Time      `json:"timestamp"`
}
