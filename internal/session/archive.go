package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"gopherai-search/internal/model"
)

type ArchivePublisher interface {
	Publish(ctx context.Context, ev model.ArchiveEvent) error
}

// ArchivingStore forwards every call to the wrapped store and, after a
// successful write, ships an ArchiveEvent to the durable store. Publish
// failures are logged and never surface to the caller.
type ArchivingStore struct {
	Store
	publisher ArchivePublisher
	logger    *zap.Logger
}

func NewArchivingStore(inner Store, publisher ArchivePublisher, logger *zap.Logger) *ArchivingStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchivingStore{Store: inner, publisher: publisher, logger: logger}
}

func (s *ArchivingStore) Create(ctx context.Context, ownerID, title string) (*model.Conversation, error) {
	conv, err := s.Store.Create(ctx, ownerID, title)
	if err != nil {
		return nil, err
	}
	snapshot := *conv
	s.publish(ctx, model.ArchiveEvent{
		Kind:           model.ArchiveConversationCreated,
		OwnerID:        ownerID,
		ConversationID: conv.ID,
		Conversation:   &snapshot,
	})
	return conv, nil
}

func (s *ArchivingStore) Delete(ctx context.Context, ownerID, conversationID string) error {
	if err := s.Store.Delete(ctx, ownerID, conversationID); err != nil {
		return err
	}
	s.publish(ctx, model.ArchiveEvent{
		Kind:           model.ArchiveConversationDeleted,
		OwnerID:        ownerID,
		ConversationID: conversationID,
	})
	return nil
}

func (s *ArchivingStore) Append(ctx context.Context, ownerID, conversationID string, turn model.Turn) (*model.Turn, error) {
	appended, err := s.Store.Append(ctx, ownerID, conversationID, turn)
	if err != nil {
		return nil, err
	}
	snapshot := *appended
	s.publish(ctx, model.ArchiveEvent{
		Kind:           model.ArchiveTurnAppended,
		OwnerID:        ownerID,
		ConversationID: conversationID,
		Turn:           &snapshot,
	})
	return appended, nil
}

func (s *ArchivingStore) SetAux(ctx context.Context, ownerID, conversationID string, aux model.AuxContext) error {
	if err := s.Store.SetAux(ctx, ownerID, conversationID, aux); err != nil {
		return err
	}
	aux.ConversationID = conversationID
	s.publish(ctx, model.ArchiveEvent{
		Kind:           model.ArchiveAuxReplaced,
		OwnerID:        ownerID,
		ConversationID: conversationID,
		Aux:            &aux,
	})
	return nil
}

func (s *ArchivingStore) publish(ctx context.Context, ev model.ArchiveEvent) {
	ev.At = time.Now()
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish archive event failed",
			zap.String("kind", ev.Kind),
			zap.String("conversation_id", ev.ConversationID),
			zap.Error(err),
		)
	}
}
