package model

import (
	"errors"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

var (
	ErrInvalidRole      = errors.New("turn role must be user or assistant")
	ErrUserTurnEvidence = errors.New("user turn cannot carry evidence")
)

// Turn is one entry of a conversation's append-only log. Only Role and
// Content are ever sent back to the completion provider; the remaining fields
// are artifacts for the client.
type Turn struct {
	ID             uint           `gorm:"primaryKey" json:"-"`
	ConversationID string         `gorm:"size:36;not null;index:idx_turn_conv_seq,priority:1" json:"conversation_id"`
	Seq            int            `gorm:"not null;index:idx_turn_conv_seq,priority:2" json:"seq"`
	Role           string         `gorm:"size:16;not null" json:"role"`
	Content        string         `gorm:"type:text;not null" json:"content"`
	Evidence       []Evidence     `gorm:"type:text;serializer:json" json:"evidence,omitempty"`
	Code           string         `gorm:"type:text" json:"code,omitempty"`
	Charts         []Chart        `gorm:"type:text;serializer:json" json:"charts,omitempty"`
	ExecError      string         `gorm:"type:text" json:"exec_error,omitempty"`
	Image          *ImageArtifact `gorm:"type:mediumtext;serializer:json" json:"image,omitempty"`
	Audio          *AudioArtifact `gorm:"type:mediumtext;serializer:json" json:"audio,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (t Turn) Validate() error {
	switch t.Role {
	case RoleUser:
		if len(t.Evidence) > 0 {
			return ErrUserTurnEvidence
		}
	case RoleAssistant:
	default:
		return ErrInvalidRole
	}
	return nil
}

// Chart is a rendering-agnostic chart recorded by the sandbox plot handle.
type Chart struct {
	Kind   string    `json:"kind"`
	Title  string    `json:"title,omitempty"`
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// ImageArtifact holds either generated image bytes or a fallback URL.
type ImageArtifact struct {
	Prompt   string `json:"prompt"`
	MIMEType string `json:"mime_type,omitempty"`
	Data     []byte `json:"data,omitempty"`
	URL      string `json:"url,omitempty"`
}

type AudioArtifact struct {
	Format   string `json:"format"`
	Language string `json:"language,omitempty"`
	Data     []byte `json:"data"`
}
