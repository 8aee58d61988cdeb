package recommender

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/playlog/backend/model"
	"github.com/playlog/backend/utils"
)

const (
	keyNamespace = "recommendations"
	// DefaultTTL outlives a daily training run.
	DefaultTTL = 48 * time.Hour
)

// Store keeps the latest recommendations of each user in a key-value store.
type Store struct {
	kv  utils.KeyValueStore
	ttl time.Duration
}

// NewStore creates a store whose entries expire after ttl, 0 keeps them
// until the next run overwrites them.
func NewStore(kv utils.KeyValueStore, ttl time.Duration) *Store {
	return &Store{kv: kv, ttl: ttl}
}

func key(userId string) (string, error) {
	return utils.NewRedisKeyParser().EncodeKey(keyNamespace, userId)
}

func (s *Store) Save(ctx context.Context, userId string, recs []model.Recommendation) error {
	k, err := key(userId)
	if err != nil {
		return err
	}
	b, err := json.Marshal(recs)
	if err != nil {
		return errors.Wrap(err, "encode recommendations")
	}
	return errors.Wrapf(s.kv.Set(ctx, k, b, s.ttl), "save recommendations of %s", userId)
}

func (s *Store) SaveAll(ctx context.Context, all map[string][]model.Recommendation) error {
	for user, recs := range all {
		if err := s.Save(ctx, user, recs); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the stored recommendations, empty when there are none.
func (s *Store) Get(ctx context.Context, userId string) ([]model.Recommendation, error) {
	k, err := key(userId)
	if err != nil {
		return nil, err
	}
	b, found, err := s.kv.Get(ctx, k)
	if err != nil {
		return nil, errors.Wrapf(err, "read recommendations of %s", userId)
	}
	if !found {
		return []model.Recommendation{}, nil
	}
	recs := []model.Recommendation{}
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, errors.Wrap(err, "decode recommendations")
	}
	return recs, nil
}
