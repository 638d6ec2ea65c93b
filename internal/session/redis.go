package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"gopherai-search/internal/model"
)

const appendRetries = 10

// RedisStore keeps the hot conversation state in Redis: one JSON key per
// conversation, a list per turn log, a JSON key per aux context and a sorted
// set indexing each owner's conversations by last activity. Every key shares
// the configured TTL, refreshed on writes.
type RedisStore struct {
	client *redisv9.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redisv9.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "chat"
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) Create(ctx context.Context, ownerID, title string) (*model.Conversation, error) {
	conv, err := newConversation(ownerID, title)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(conv)
	if err != nil {
		return nil, fmt.Errorf("marshal conversation failed: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
		pipe.Set(ctx, s.convKey(conv.ID), payload, s.ttl)
		pipe.ZAdd(ctx, s.ownerKey(ownerID), redisv9.Z{Score: float64(conv.UpdatedAt.UnixNano()), Member: conv.ID})
		pipe.Expire(ctx, s.ownerKey(ownerID), s.ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis create conversation failed: %w", err)
	}
	return conv, nil
}

func (s *RedisStore) Get(ctx context.Context, ownerID, conversationID string) (*model.Conversation, error) {
	return s.decodeConversation(s.client.Get(ctx, s.convKey(conversationID)), ownerID)
}

func (s *RedisStore) decodeConversation(cmd *redisv9.StringCmd, ownerID string) (*model.Conversation, error) {
	raw, err := cmd.Result()
	if err == redisv9.Nil {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get conversation failed: %w", err)
	}
	var conv model.Conversation
	if err := json.Unmarshal([]byte(raw), &conv); err != nil {
		return nil, fmt.Errorf("unmarshal conversation failed: %w", err)
	}
	if conv.OwnerID != ownerID {
		return nil, ErrConversationNotFound
	}
	return &conv, nil
}

func (s *RedisStore) List(ctx context.Context, ownerID string) ([]model.Conversation, error) {
	ids, err := s.client.ZRevRange(ctx, s.ownerKey(ownerID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list conversations failed: %w", err)
	}
	list := make([]model.Conversation, 0, len(ids))
	if len(ids) == 0 {
		return list, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.convKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load conversations failed: %w", err)
	}
	var expired []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var conv model.Conversation
		if err := json.Unmarshal([]byte(raw), &conv); err != nil {
			return nil, fmt.Errorf("unmarshal conversation failed: %w", err)
		}
		list = append(list, conv)
	}
	if len(expired) > 0 {
		_ = s.client.ZRem(ctx, s.ownerKey(ownerID), expired...).Err()
	}
	return list, nil
}

func (s *RedisStore) Delete(ctx context.Context, ownerID, conversationID string) error {
	if _, err := s.Get(ctx, ownerID, conversationID); err != nil {
		return err
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
		pipe.Del(ctx, s.convKey(conversationID), s.turnsKey(conversationID), s.auxKey(conversationID))
		pipe.ZRem(ctx, s.ownerKey(ownerID), conversationID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete conversation failed: %w", err)
	}
	return nil
}

// Append allocates the sequence number under WATCH on the turn list and the
// conversation key, so two writers never hand out the same position and a
// concurrent Delete is never undone.
func (s *RedisStore) Append(ctx context.Context, ownerID, conversationID string, turn model.Turn) (*model.Turn, error) {
	convKey := s.convKey(conversationID)
	turnsKey := s.turnsKey(conversationID)

	var appended model.Turn
	txf := func(tx *redisv9.Tx) error {
		conv, err := s.decodeConversation(tx.Get(ctx, convKey), ownerID)
		if err != nil {
			return err
		}
		n, err := tx.LLen(ctx, turnsKey).Result()
		if err != nil {
			return err
		}
		prepared, err := prepareTurn(conversationID, int(n), turn)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(prepared)
		if err != nil {
			return fmt.Errorf("marshal turn failed: %w", err)
		}
		conv.UpdatedAt = prepared.CreatedAt
		convPayload, err := json.Marshal(conv)
		if err != nil {
			return fmt.Errorf("marshal conversation failed: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
			pipe.RPush(ctx, turnsKey, payload)
			pipe.Expire(ctx, turnsKey, s.ttl)
			pipe.Set(ctx, convKey, convPayload, s.ttl)
			pipe.Expire(ctx, s.auxKey(conversationID), s.ttl)
			pipe.ZAdd(ctx, s.ownerKey(ownerID), redisv9.Z{Score: float64(conv.UpdatedAt.UnixNano()), Member: conversationID})
			pipe.Expire(ctx, s.ownerKey(ownerID), s.ttl)
			return nil
		})
		if err == nil {
			appended = prepared
		}
		return err
	}

	var err error
	for i := 0; i < appendRetries; i++ {
		err = s.client.Watch(ctx, txf, turnsKey, convKey)
		if errors.Is(err, redisv9.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrConversationNotFound) || errors.Is(err, model.ErrUserTurnEvidence) || errors.Is(err, model.ErrInvalidRole) {
			return nil, err
		}
		if err != nil {
			return nil, fmt.Errorf("redis append turn failed: %w", err)
		}
		return &appended, nil
	}
	return nil, fmt.Errorf("redis append turn failed: %w", err)
}

func (s *RedisStore) Turns(ctx context.Context, ownerID, conversationID string) ([]model.Turn, error) {
	if _, err := s.Get(ctx, ownerID, conversationID); err != nil {
		return nil, err
	}
	raws, err := s.client.LRange(ctx, s.turnsKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list turns failed: %w", err)
	}
	turns := make([]model.Turn, 0, len(raws))
	for _, raw := range raws {
		var t model.Turn
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, fmt.Errorf("unmarshal turn failed: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (s *RedisStore) SetAux(ctx context.Context, ownerID, conversationID string, aux model.AuxContext) error {
	if _, err := s.Get(ctx, ownerID, conversationID); err != nil {
		return err
	}
	aux.ConversationID = conversationID
	aux.UpdatedAt = time.Now()
	payload, err := json.Marshal(aux)
	if err != nil {
		return fmt.Errorf("marshal aux context failed: %w", err)
	}
	if err := s.client.Set(ctx, s.auxKey(conversationID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set aux context failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Aux(ctx context.Context, ownerID, conversationID string) (*model.AuxContext, error) {
	if _, err := s.Get(ctx, ownerID, conversationID); err != nil {
		return nil, err
	}
	raw, err := s.client.Get(ctx, s.auxKey(conversationID)).Result()
	if err == redisv9.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get aux context failed: %w", err)
	}
	var aux model.AuxContext
	if err := json.Unmarshal([]byte(raw), &aux); err != nil {
		return nil, fmt.Errorf("unmarshal aux context failed: %w", err)
	}
	return &aux, nil
}

func (s *RedisStore) convKey(id string) string {
	return fmt.Sprintf("%s:conv:%s", s.prefix, id)
}

func (s *RedisStore) turnsKey(id string) string {
	return fmt.Sprintf("%s:turns:%s", s.prefix, id)
}

func (s *RedisStore) auxKey(id string) string {
	return fmt.Sprintf("%s:aux:%s", s.prefix, id)
}

func (s *RedisStore) ownerKey(ownerID string) string {
	return fmt.Sprintf("%s:owner:%s", s.prefix, ownerID)
}
