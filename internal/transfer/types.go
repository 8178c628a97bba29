package transfer

import "time"

// ConversationState tracks where a conversation is in its transfer lifecycle.
type ConversationState string

const (
	ConvActive            ConversationState = "ACTIVE"
	ConvTransferPending   ConversationState = "TRANSFER_PENDING"
	ConvTransferActive    ConversationState = "TRANSFER_ACTIVE"
	ConvTransferCompleted ConversationState = "TRANSFER_COMPLETED"
	ConvTransferCancelled ConversationState = "TRANSFER_CANCELLED"
	ConvTransferFailed    ConversationState = "TRANSFER_FAILED"
)

// TransferState advances monotonically; CANCELLED and FAILED are terminal.
type TransferState string

const (
	StateInitiated      TransferState = "INITIATED"
	StateAgentBNotified TransferState = "AGENT_B_NOTIFIED"
	StateAgentBJoined   TransferState = "AGENT_B_JOINED"
	StateCompleted      TransferState = "COMPLETED"
	StateCancelled      TransferState = "CANCELLED"
	StateFailed         TransferState = "FAILED"
)

// Terminal reports whether s admits no further transitions.
func (s TransferState) Terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateFailed:
		return true
	}
	return false
}

// Conversation is one caller's end-to-end support session. It may be
// transferred multiple times sequentially, never concurrently.
type Conversation struct {
	ID                string            `json:"id"`
	CallerIdentity    string            `json:"caller_identity"`
	CallerEmail       string            `json:"caller_email,omitempty"`
	CallerType        string            `json:"caller_type,omitempty"`
	OriginRoomName    string            `json:"origin_room_name"`
	State             ConversationState `json:"state"`
	CurrentTransferID string            `json:"current_transfer_id,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Transfer is one attempt to hand a caller from Agent A to Agent B. Immutable
// once it reaches a terminal state.
type Transfer struct {
	ID               string        `json:"id"`
	ConversationID   string        `json:"conversation_id"`
	AgentAIdentity   string        `json:"agent_a_identity"`
	AgentBIdentity   string        `json:"agent_b_identity"`
	TargetCategory   string        `json:"target_category"`
	TransferRoomName string        `json:"transfer_room_name"`
	Summary          string        `json:"summary"`
	SummaryDegraded  bool          `json:"summary_degraded,omitempty"`
	State            TransferState `json:"state"`
	CancelReason     string        `json:"cancel_reason,omitempty"`
	FailureKind      string        `json:"failure_kind,omitempty"`
	TelephonyCallSID string        `json:"telephony_call_sid,omitempty"`
	AgentAToken      string        `json:"-"`
	AgentBToken      string        `json:"-"`
	SegmentCount     int           `json:"segment_count"`
	CreatedAt        time.Time     `json:"created_at"`
	CompletedAt      time.Time     `json:"completed_at,omitempty"`
}

func (t *Transfer) clone() *Transfer {
	cp := *t
	return &cp
}

func (c *Conversation) clone() *Conversation {
	cp := *c
	return &cp
}
