package model

import "time"

const (
	ArchiveConversationCreated = "conversation.created"
	ArchiveConversationDeleted = "conversation.deleted"
	ArchiveTurnAppended        = "turn.appended"
	ArchiveAuxReplaced         = "aux.replaced"
)

// ArchiveEvent is the write-behind record shipped to the durable store.
type ArchiveEvent struct {
	Kind           string        `json:"kind"`
	OwnerID        string        `json:"owner_id"`
	ConversationID string        `json:"conversation_id"`
	Conversation   *Conversation `json:"conversation,omitempty"`
	Turn           *Turn         `json:"turn,omitempty"`
	Aux            *AuxContext   `json:"aux,omitempty"`
	At             time.Time     `json:"at"`
}
