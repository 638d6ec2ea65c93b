// Package session holds conversations, their append-only turn logs and the
// auxiliary document/dataset context, keyed by owner (session) id.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"gopherai-search/internal/model"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInvalidOwner         = errors.New("owner id is empty")
)

const defaultTitle = "New Chat"

// Store is passed explicitly to every component that reads or writes
// conversation state. Implementations are safe for concurrent use.
type Store interface {
	Create(ctx context.Context, ownerID, title string) (*model.Conversation, error)
	Get(ctx context.Context, ownerID, conversationID string) (*model.Conversation, error)
	List(ctx context.Context, ownerID string) ([]model.Conversation, error)
	Delete(ctx context.Context, ownerID, conversationID string) error

	// Append adds a turn at the end of the log and returns it with Seq set.
	Append(ctx context.Context, ownerID, conversationID string, turn model.Turn) (*model.Turn, error)
	Turns(ctx context.Context, ownerID, conversationID string) ([]model.Turn, error)

	SetAux(ctx context.Context, ownerID, conversationID string, aux model.AuxContext) error
	// Aux returns nil, nil when nothing was uploaded.
	Aux(ctx context.Context, ownerID, conversationID string) (*model.AuxContext, error)
}

func newConversation(ownerID, title string) (*model.Conversation, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrInvalidOwner
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultTitle
	}
	now := time.Now()
	return &model.Conversation{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func prepareTurn(conversationID string, seq int, turn model.Turn) (model.Turn, error) {
	if err := turn.Validate(); err != nil {
		return model.Turn{}, err
	}
	turn.ID = 0
	turn.ConversationID = conversationID
	turn.Seq = seq
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	return turn, nil
}
