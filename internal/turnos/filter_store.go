package turnos

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// FilterStore persists the staff index filter per user, so the list comes
// back the way each agent left it.
type FilterStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewFilterStore(client *redis.Client, ttl time.Duration) *FilterStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &FilterStore{client: client, ttl: ttl}
}

func filterKey(username string) string {
	return "turnos:filtro:" + username
}

func (s *FilterStore) Save(ctx context.Context, username string, filter ListFilter) error {
	raw, err := json.Marshal(filter)
	if err != nil {
		return fmt.Errorf("turnos: marshal filter: %w", err)
	}
	if err := s.client.Set(ctx, filterKey(username), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("turnos: save filter: %w", err)
	}
	return nil
}

// Load returns the saved filter, or the default view when the user has
// none stored.
func (s *FilterStore) Load(ctx context.Context, username string) (ListFilter, error) {
	raw, err := s.client.Get(ctx, filterKey(username)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return DefaultListFilter(), nil
		}
		return ListFilter{}, fmt.Errorf("turnos: load filter: %w", err)
	}
	var filter ListFilter
	if err := json.Unmarshal(raw, &filter); err != nil {
		return DefaultListFilter(), nil
	}
	return filter, nil
}

func (s *FilterStore) Clear(ctx context.Context, username string) error {
	if err := s.client.Del(ctx, filterKey(username)).Err(); err != nil {
		return fmt.Errorf("turnos: clear filter: %w", err)
	}
	return nil
}
