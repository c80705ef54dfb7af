package models

import "time"

// DeviceBinding associates an opaque device token with a phone number.
// Both sides are unique: rebinding either side evicts the stale association.
type DeviceBinding struct {
	ID               int64     `json:"id"`
	PhoneNumber      string    `json:"phone_number"`
	DeviceID         string    `json:"device_id"`
	UserAgent        string    `json:"user_agent"`
	LastLoginIP      string    `json:"last_login_ip,omitempty"`
	LastActivityTime time.Time `json:"last_activity_time"`
}
