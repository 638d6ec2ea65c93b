package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"gopherai-search/internal/model"
	"gopherai-search/internal/repository"
)

// GormStore persists conversations through the repositories. It is the
// durable driver and the target the archive worker writes into.
type GormStore struct {
	db    *gorm.DB
	convs *repository.ConversationRepository
	turns *repository.TurnRepository
	aux   *repository.AuxContextRepository
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:    db,
		convs: repository.NewConversationRepository(db),
		turns: repository.NewTurnRepository(db),
		aux:   repository.NewAuxContextRepository(db),
	}
}

// AutoMigrate creates the tables the store needs.
func (s *GormStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&model.Conversation{}, &model.Turn{}, &model.AuxContext{}); err != nil {
		return fmt.Errorf("auto migrate session tables failed: %w", err)
	}
	return nil
}

func (s *GormStore) Create(ctx context.Context, ownerID, title string) (*model.Conversation, error) {
	conv, err := newConversation(ownerID, title)
	if err != nil {
		return nil, err
	}
	if err := s.convs.Create(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *GormStore) Get(ctx context.Context, ownerID, conversationID string) (*model.Conversation, error) {
	conv, err := s.convs.GetByIDAndOwnerID(ctx, conversationID, ownerID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

func (s *GormStore) List(ctx context.Context, ownerID string) ([]model.Conversation, error) {
	return s.convs.ListByOwnerID(ctx, ownerID)
}

func (s *GormStore) Delete(ctx context.Context, ownerID, conversationID string) error {
	if _, err := s.Get(ctx, ownerID, conversationID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repository.NewTurnRepository(tx).DeleteByConversationID(ctx, conversationID); err != nil {
			return err
		}
		if err := repository.NewAuxContextRepository(tx).DeleteByConversationID(ctx, conversationID); err != nil {
			return err
		}
		return repository.NewConversationRepository(tx).DeleteByIDAndOwnerID(ctx, conversationID, ownerID)
	})
}

func (s *GormStore) Append(ctx context.Context, ownerID, conversationID string, turn model.Turn) (*model.Turn, error) {
	if _, err := s.Get(ctx, ownerID, conversationID); err != nil {
		return nil, err
	}
	var appended model.Turn
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		turns := repository.NewTurnRepository(tx)
		seq, err := turns.CountByConversationID(ctx, conversationID)
		if err != nil {
			return err
		}
		prepared, err := prepareTurn(conversationID, seq, turn)
		if err != nil {
			return err
		}
		if err := turns.Create(ctx, &prepared); err != nil {
			return err
		}
		appended = prepared
		return repository.NewConversationRepository(tx).Touch(ctx, conversationID, prepared.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	return &appended, nil
}

func (s *GormStore) Turns(ctx context.Context, ownerID, conversationID string) ([]model.Turn, error) {
	if _, err := s.Get(ctx, ownerID, conversationID); err != nil {
		return nil, err
	}
	return s.turns.ListByConversationID(ctx, conversationID)
}

func (s *GormStore) SetAux(ctx context.Context, ownerID, conversationID string, aux model.AuxContext) error {
	if _, err := s.Get(ctx, ownerID, conversationID); err != nil {
		return err
	}
	aux.ConversationID = conversationID
	aux.UpdatedAt = time.Now()
	return s.aux.Replace(ctx, &aux)
}

func (s *GormStore) Aux(ctx context.Context, ownerID, conversationID string) (*model.AuxContext, error) {
	if _, err := s.Get(ctx, ownerID, conversationID); err != nil {
		return nil, err
	}
	return s.aux.GetByConversationID(ctx, conversationID)
}

// ApplyArchiveEvent replays a write-behind event. Replays are idempotent so a
// redelivered message does not duplicate rows.
func (s *GormStore) ApplyArchiveEvent(ctx context.Context, ev model.ArchiveEvent) error {
	switch ev.Kind {
	case model.ArchiveConversationCreated:
		if ev.Conversation == nil {
			return fmt.Errorf("archive event %s without conversation", ev.Kind)
		}
		existing, err := s.convs.GetByIDAndOwnerID(ctx, ev.Conversation.ID, ev.OwnerID)
		if err != nil || existing != nil {
			return err
		}
		conv := *ev.Conversation
		return s.convs.Create(ctx, &conv)
	case model.ArchiveTurnAppended:
		if ev.Turn == nil {
			return fmt.Errorf("archive event %s without turn", ev.Kind)
		}
		count, err := s.turns.CountByConversationID(ctx, ev.ConversationID)
		if err != nil {
			return err
		}
		if ev.Turn.Seq < count {
			return nil
		}
		turn := *ev.Turn
		turn.ID = 0
		turn.ConversationID = ev.ConversationID
		if err := s.turns.Create(ctx, &turn); err != nil {
			return err
		}
		return s.convs.Touch(ctx, ev.ConversationID, turn.CreatedAt)
	case model.ArchiveAuxReplaced:
		if ev.Aux == nil {
			return fmt.Errorf("archive event %s without aux context", ev.Kind)
		}
		aux := *ev.Aux
		aux.ConversationID = ev.ConversationID
		return s.aux.Replace(ctx, &aux)
	case model.ArchiveConversationDeleted:
		err := s.Delete(ctx, ev.OwnerID, ev.ConversationID)
		if errors.Is(err, ErrConversationNotFound) {
			return nil
		}
		return err
	default:
		return fmt.Errorf("unknown archive event kind %q", ev.Kind)
	}
}
