package models

// EventKind: входящие события от диспетчера.
type EventKind string

const (
	EventStart  EventKind = "start"
	EventVerify EventKind = "verify"
	EventText   EventKind = "text"
	EventCancel EventKind = "cancel"
)

// Event is a single inbound (user, action) pair.
type Event struct {
	Kind       EventKind
	UserID     int64
	ChatID     int64
	Text       string
	FirstName  string
	CallbackID string
}

// OutboundKind: что транспорт должен отправить пользователю.
type OutboundKind string

const (
	OutboundChecklist    OutboundKind = "checklist"
	OutboundMissing      OutboundKind = "missing_requirements"
	OutboundPrompt       OutboundKind = "prompt"
	OutboundConfirmation OutboundKind = "confirmation"
	OutboundInvalid      OutboundKind = "invalid"
	OutboundCancelled    OutboundKind = "cancelled"
	OutboundUnexpected   OutboundKind = "unexpected"
	OutboundAlready      OutboundKind = "already_completed"
)

type PromptKind string

const (
	PromptSocialHandle  PromptKind = "social_handle"
	PromptWalletAddress PromptKind = "wallet_address"
)

type ReasonKind string

const (
	ReasonHandleNotFound   ReasonKind = "handle_not_found"
	ReasonBadWalletFormat  ReasonKind = "bad_wallet_format"
	ReasonTransientFailure ReasonKind = "transient_failure"
)

// Outbound is the single message produced for one processed Event.
type Outbound struct {
	Kind      OutboundKind
	UserID    int64
	ChatID    int64
	FirstName string
	Prompt    PromptKind
	Reason    ReasonKind
	Missing   []Requirement
	// Degraded is set on the wallet prompt when the social step was skipped
	// because the social network could not be queried.
	Degraded bool
}
