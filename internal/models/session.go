// internal/models/session.go
package models

import "time"

// SessionState: closed set of conversation states.
// IDLE is implicit: for such a user no session record exists.
type SessionState string

const (
	StateIdle                 SessionState = "idle"
	StateAwaitingVerification SessionState = "awaiting_verification"
	StateAwaitingSocialHandle SessionState = "awaiting_social_handle"
	StateAwaitingWallet       SessionState = "awaiting_wallet"
	StateCompleted            SessionState = "completed"
	StateCancelled            SessionState = "cancelled"
)

// AllStates lists every valid SessionState in flow order.
var AllStates = []SessionState{
	StateIdle,
	StateAwaitingVerification,
	StateAwaitingSocialHandle,
	StateAwaitingWallet,
	StateCompleted,
	StateCancelled,
}

// Valid reports whether s belongs to the enumeration.
func (s SessionState) Valid() bool {
	for _, st := range AllStates {
		if st == s {
			return true
		}
	}
	return false
}

// Terminal: из этих состояний переходов нет.
func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// Session is the per-user conversation record.
type Session struct {
	UserID        int64        `json:"user_id"`
	ChatID        int64        `json:"chat_id"`
	State         SessionState `json:"state"`
	SocialHandle  string       `json:"social_handle,omitempty"`
	WalletAddress string       `json:"wallet_address,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Clone returns a detached copy, so callers never share a record with the store.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
