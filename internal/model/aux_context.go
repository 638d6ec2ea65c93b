package model

import "time"

// AuxContext is the uploaded document or dataset scoped to one conversation.
// A new upload replaces it wholesale.
type AuxContext struct {
	ConversationID string    `gorm:"primaryKey;size:36" json:"conversation_id"`
	DocumentName   string    `gorm:"size:256" json:"document_name,omitempty"`
	DocumentText   string    `gorm:"type:longtext" json:"document_text,omitempty"`
	Dataset        *Dataset  `gorm:"type:longtext;serializer:json" json:"dataset,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (a *AuxContext) HasDocument() bool {
	return a != nil && a.DocumentText != ""
}

func (a *AuxContext) HasDataset() bool {
	return a != nil && a.Dataset != nil && len(a.Dataset.Columns) > 0
}

func (a *AuxContext) Empty() bool {
	return !a.HasDocument() && !a.HasDataset()
}
