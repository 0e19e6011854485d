package models

// MembershipStatus mirrors the chat member statuses reported by Telegram.
type MembershipStatus string

const (
	MembershipMember        MembershipStatus = "member"
	MembershipAdministrator MembershipStatus = "administrator"
	MembershipCreator       MembershipStatus = "creator"
	MembershipRestricted    MembershipStatus = "restricted"
	MembershipLeft          MembershipStatus = "left"
	MembershipKicked        MembershipStatus = "kicked"
	MembershipUnknown       MembershipStatus = "unknown"
)

// Satisfies: только member / administrator / creator засчитываются.
func (s MembershipStatus) Satisfies() bool {
	switch s {
	case MembershipMember, MembershipAdministrator, MembershipCreator:
		return true
	}
	return false
}

// ParseMembershipStatus maps a raw platform status; anything unrecognised is unknown.
func ParseMembershipStatus(raw string) MembershipStatus {
	switch st := MembershipStatus(raw); st {
	case MembershipMember, MembershipAdministrator, MembershipCreator,
		MembershipRestricted, MembershipLeft, MembershipKicked:
		return st
	}
	return MembershipUnknown
}

// Requirement is one channel or group the user has to join.
type Requirement struct {
	ID     string `json:"id" yaml:"id"`
	ChatID int64  `json:"chat_id" yaml:"chat_id"`
	Title  string `json:"title" yaml:"title"`
	Link   string `json:"link" yaml:"link"`
}

// VerificationOutcome is the result of one membership evaluation.
type VerificationOutcome struct {
	Satisfied bool          `json:"satisfied"`
	Missing   []Requirement `json:"missing_requirements"`
}
