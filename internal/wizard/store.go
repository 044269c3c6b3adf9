package wizard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DraftStore persists booking drafts between wizard steps.
type DraftStore interface {
	Put(ctx context.Context, draft *Draft) error
	Get(ctx context.Context, id string) (*Draft, error)
	Delete(ctx context.Context, id string) error
}

// RedisDraftStore keeps drafts in redis with a TTL, so abandoned wizards
// clean themselves up.
type RedisDraftStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDraftStore(client *redis.Client, ttl time.Duration) *RedisDraftStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisDraftStore{client: client, ttl: ttl}
}

func draftKey(id string) string {
	return "turnos:borrador:" + id
}

func (s *RedisDraftStore) Put(ctx context.Context, draft *Draft) error {
	raw, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("wizard: marshal draft: %w", err)
	}
	if err := s.client.Set(ctx, draftKey(draft.ID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("wizard: store draft: %w", err)
	}
	return nil
}

func (s *RedisDraftStore) Get(ctx context.Context, id string) (*Draft, error) {
	raw, err := s.client.Get(ctx, draftKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrDraftNotFound
		}
		return nil, fmt.Errorf("wizard: load draft: %w", err)
	}
	var draft Draft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return nil, fmt.Errorf("wizard: decode draft: %w", err)
	}
	return &draft, nil
}

func (s *RedisDraftStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, draftKey(id)).Err(); err != nil {
		return fmt.Errorf("wizard: delete draft: %w", err)
	}
	return nil
}
