package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gopherai-search/internal/model"
)

type AuxContextRepository struct {
	db *gorm.DB
}

func NewAuxContextRepository(db *gorm.DB) *AuxContextRepository {
	return &AuxContextRepository{db: db}
}

// Replace overwrites every column of the conversation's aux context.
func (r *AuxContextRepository) Replace(ctx context.Context, aux *model.AuxContext) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_id"}},
		UpdateAll: true,
	}).Create(aux).Error
	if err != nil {
		return fmt.Errorf("replace aux context failed: %w", err)
	}
	return nil
}

func (r *AuxContextRepository) GetByConversationID(ctx context.Context, conversationID string) (*model.AuxContext, error) {
	var aux model.AuxContext
	if err := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).First(&aux).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get aux context failed: %w", err)
	}
	return &aux, nil
}

func (r *AuxContextRepository) DeleteByConversationID(ctx context.Context, conversationID string) error {
	if err := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Delete(&model.AuxContext{}).Error; err != nil {
		return fmt.Errorf("delete aux context failed: %w", err)
	}
	return nil
}
