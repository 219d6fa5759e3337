// Package lock serializes admission and approval work on the same facility
// or user. Keys are always taken in sorted order so callers may pass them
// in any order without risking deadlock.
package lock

import (
	"context"
	"errors"
	"sort"
)

var ErrBusy = errors.New("lock is held by another request")

type Unlock func()

type Locker interface {
	Lock(ctx context.Context, keys ...string) (Unlock, error)
}

func FacilityKey(facilityID string) string {
	return "facility:" + facilityID
}

func UserKey(userID string) string {
	return "user:" + userID
}

func normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
