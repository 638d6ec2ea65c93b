package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"gopherai-search/internal/model"
)

// TurnRepository only inserts and reads; turns are never updated.
type TurnRepository struct {
	db *gorm.DB
}

func NewTurnRepository(db *gorm.DB) *TurnRepository {
	return &TurnRepository{db: db}
}

func (r *TurnRepository) Create(ctx context.Context, turn *model.Turn) error {
	if err := r.db.WithContext(ctx).Create(turn).Error; err != nil {
		return fmt.Errorf("create turn failed: %w", err)
	}
	return nil
}

func (r *TurnRepository) ListByConversationID(ctx context.Context, conversationID string) ([]model.Turn, error) {
	var turns []model.Turn
	if err := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Order("seq ASC").Find(&turns).Error; err != nil {
		return nil, fmt.Errorf("list turns failed: %w", err)
	}
	return turns, nil
}

func (r *TurnRepository) CountByConversationID(ctx context.Context, conversationID string) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Turn{}).Where("conversation_id = ?", conversationID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count turns failed: %w", err)
	}
	return int(count), nil
}

func (r *TurnRepository) DeleteByConversationID(ctx context.Context, conversationID string) error {
	if err := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Delete(&model.Turn{}).Error; err != nil {
		return fmt.Errorf("delete turns by conversation failed: %w", err)
	}
	return nil
}
