package models

import "time"

// Session is one issued refresh credential. TokenHash is the fingerprint of
// the credential currently valid for this session; it is overwritten on
// every rotation.
type Session struct {
	ID           string
	AccountID    string
	TokenHash    string
	ExpiresAt    time.Time
	LastActiveAt time.Time
	DeviceName   string
	IPAddress    string
	UserAgent    string
	CreatedAt    time.Time
}

// SessionMeta is the optional client metadata recorded on a session.
type SessionMeta struct {
	DeviceName string
	IPAddress  string
	UserAgent  string
}

// SessionView is what listing returns: the credential is masked.
type SessionView struct {
	ID           string    `json:"id"`
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expiresAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	DeviceName   string    `json:"deviceName,omitempty"`
	IPAddress    string    `json:"ipAddress,omitempty"`
	UserAgent    string    `json:"userAgent,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	Current      bool      `json:"current"`
}
