package chat

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/puyokura/foodfortalk/model"
)

const (
	systemName = "System"
	guestName  = "Guest"
)

// nameResolver caches display names by user id. Lookups for the same id share one
// directory call.
type nameResolver struct {
	dir   Directory
	group singleflight.Group

	mu    sync.RWMutex
	names map[uint]string
}

func newNameResolver(dir Directory) *nameResolver {
	return &nameResolver{dir: dir, names: make(map[uint]string)}
}

// remember records the name a live session was admitted with.
func (r *nameResolver) remember(userID uint, name string) {
	r.mu.Lock()
	r.names[userID] = name
	r.mu.Unlock()
}

func (r *nameResolver) forget(userID uint) {
	r.mu.Lock()
	delete(r.names, userID)
	r.mu.Unlock()
}

// displayName never fails. Unknown users and lookup errors resolve to "Guest" and are
// not cached.
func (r *nameResolver) displayName(ctx context.Context, userID uint) string {
	if userID == 0 {
		return systemName
	}

	r.mu.RLock()
	name, ok := r.names[userID]
	r.mu.RUnlock()
	if ok {
		return name
	}

	v, err, _ := r.group.Do(strconv.FormatUint(uint64(userID), 10), func() (interface{}, error) {
		identity, err := r.dir.GetUserByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		name := model.DisplayName(*identity)
		r.remember(userID, name)
		return name, nil
	})
	if err != nil {
		return guestName
	}
	return v.(string)
}
