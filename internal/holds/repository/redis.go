package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	holdserrors "spacebook/internal/holds/errors"
	"spacebook/pkg/model"

	"github.com/redis/go-redis/v9"
)

const (
	facilityKeyPrefix = "spacebook:holds:"
	holdKeyPrefix     = "spacebook:hold:"

	maxTxRetries = 5
)

var errTxExhausted = errors.New("hold store busy, optimistic transaction retries exhausted")

// redisHoldStore keeps one hash per facility (field = hold id, value =
// JSON hold) plus a hold id -> facility id key that expires with the hold.
// Writes run as WATCH/MULTI transactions on the facility hash.
type redisHoldStore struct {
	rdb *redis.Client
}

func NewRedisHoldStore(rdb *redis.Client) HoldStore {
	return &redisHoldStore{rdb: rdb}
}

func facilityKey(facilityID string) string { return facilityKeyPrefix + facilityID }
func holdKey(id string) string             { return holdKeyPrefix + id }

func (s *redisHoldStore) Acquire(ctx context.Context, candidate *model.SlotHold, reuseID string, now time.Time) (*model.SlotHold, error) {
	key := facilityKey(candidate.FacilityID)
	var result, blocking *model.SlotHold

	err := s.watch(ctx, key, func(tx *redis.Tx) error {
		live, expired, err := readFacility(ctx, tx, key, now)
		if err != nil {
			return err
		}

		hold, b := resolveAcquire(live, candidate, reuseID)
		if b != nil {
			blocking = b
			return nil
		}
		payload, err := json.Marshal(hold)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(expired) > 0 {
				pipe.HDel(ctx, key, expired...)
			}
			pipe.HSet(ctx, key, hold.ID, payload)
			pipe.Set(ctx, holdKey(hold.ID), hold.FacilityID, hold.ExpiresAt.Sub(now))
			pipe.PExpireAt(ctx, key, latestExpiry(live, hold))
			return nil
		})
		result = hold
		return err
	})
	if err != nil {
		return nil, err
	}
	if blocking != nil {
		return blocking, fmt.Errorf("%w: hold %s", holdserrors.ErrHoldConflict, blocking.ID)
	}
	return result, nil
}

func (s *redisHoldStore) Get(ctx context.Context, id string, now time.Time) (*model.SlotHold, error) {
	facilityID, err := s.rdb.Get(ctx, holdKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, holdserrors.ErrNotFound
		}
		return nil, err
	}
	raw, err := s.rdb.HGet(ctx, facilityKey(facilityID), id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, holdserrors.ErrNotFound
		}
		return nil, err
	}
	h, err := decodeHold(raw)
	if err != nil {
		return nil, err
	}
	if !h.Live(now) {
		return nil, holdserrors.ErrNotFound
	}
	return h, nil
}

func (s *redisHoldStore) Extend(ctx context.Context, id, userID string, expiresAt, now time.Time) (*model.SlotHold, error) {
	facilityID, err := s.rdb.Get(ctx, holdKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, holdserrors.ErrNotFound
		}
		return nil, err
	}

	key := facilityKey(facilityID)
	var result *model.SlotHold
	err = s.watch(ctx, key, func(tx *redis.Tx) error {
		live, _, err := readFacility(ctx, tx, key, now)
		if err != nil {
			return err
		}
		var h *model.SlotHold
		for _, l := range live {
			if l.ID == id {
				h = l
				break
			}
		}
		if h == nil {
			return holdserrors.ErrNotFound
		}
		if h.UserID != userID {
			return holdserrors.ErrNotOwner
		}

		h.ExpiresAt = expiresAt
		payload, err := json.Marshal(h)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, id, payload)
			pipe.Set(ctx, holdKey(id), facilityID, expiresAt.Sub(now))
			pipe.PExpireAt(ctx, key, latestExpiry(live, h))
			return nil
		})
		result = h
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *redisHoldStore) Delete(ctx context.Context, id, userID string, now time.Time) error {
	facilityID, err := s.rdb.Get(ctx, holdKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}

	key := facilityKey(facilityID)
	return s.watch(ctx, key, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, id).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}
			return err
		}
		h, err := decodeHold(raw)
		if err != nil {
			return err
		}
		if h.Live(now) && h.UserID != userID {
			return holdserrors.ErrNotOwner
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, key, id)
			pipe.Del(ctx, holdKey(id))
			return nil
		})
		return err
	})
}

func (s *redisHoldStore) ListLive(ctx context.Context, facilityID string, now time.Time) ([]*model.SlotHold, error) {
	values, err := s.rdb.HGetAll(ctx, facilityKey(facilityID)).Result()
	if err != nil {
		return nil, err
	}
	live, _, err := decodeLive(values, now)
	if err != nil {
		return nil, err
	}
	sort.Slice(live, func(i, j int) bool { return live[i].Start.Before(live[j].Start) })
	return live, nil
}

// watch runs fn as an optimistic transaction on key, retrying when another
// client modified the key in between.
func (s *redisHoldStore) watch(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return errTxExhausted
}

func readFacility(ctx context.Context, tx *redis.Tx, key string, now time.Time) ([]*model.SlotHold, []string, error) {
	values, err := tx.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, nil, err
	}
	return decodeLive(values, now)
}

func decodeLive(values map[string]string, now time.Time) ([]*model.SlotHold, []string, error) {
	live := make([]*model.SlotHold, 0, len(values))
	var expired []string
	for id, raw := range values {
		h, err := decodeHold(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("decode hold %s: %w", id, err)
		}
		if h.Live(now) {
			live = append(live, h)
		} else {
			expired = append(expired, id)
		}
	}
	return live, expired, nil
}

func decodeHold(raw string) (*model.SlotHold, error) {
	var h model.SlotHold
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func latestExpiry(live []*model.SlotHold, written *model.SlotHold) time.Time {
	latest := written.ExpiresAt
	for _, h := range live {
		if h.ID != written.ID && h.ExpiresAt.After(latest) {
			latest = h.ExpiresAt
		}
	}
	return latest
}
