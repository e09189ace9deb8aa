// Package registry implements the completion registry (spec.md §4.10,
// §9): the fan-in mechanism the coordinator polls to learn when every
// FileUnit of a task has reached a terminal state. RedisRegistry (the
// production Registry, see redis.go) plays the same role
// original_source/utlis/redis_lib.py's connection does for the Python
// system, since the coordinator and its worker pool run as separate
// processes and need a rendezvous point neither owns. InProcessRegistry
// below is a mutex-guarded, sweep-on-read map kept only as the Registry
// fake used by internal/coordinator's and internal/worker's tests,
// where both collaborators run in the same test process.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/lsilvatti/modxlate/internal/task"
)

// MinTTL is the floor spec.md §9 requires for completion-registry
// entries: long enough that a slow worker can't have its status swept
// before the owning coordinator's next poll.
const MinTTL = 3600 * time.Second

// Key identifies one (task, file) completion slot.
type Key struct {
	TaskID string
	FileID string
}

// Registry is the capability the coordinator and file workers need from
// the completion tracking layer.
type Registry interface {
	SetStatus(ctx context.Context, key Key, status task.FileStatus) error
	GetStatus(ctx context.Context, key Key) (task.FileStatus, bool, error)

	// DeleteTask removes every entry belonging to taskID, once the
	// coordinator has finished fan-in for that task.
	DeleteTask(ctx context.Context, taskID string) error
}

type entry struct {
	status    task.FileStatus
	expiresAt time.Time
}

// InProcessRegistry is a Registry backed by a process-local map. It is
// only correct when every writer and reader share one instance, which
// in production means one process — so it is used by tests only; see
// RedisRegistry for the cross-process default.
type InProcessRegistry struct {
	mu      sync.Mutex
	entries map[Key]entry
	ttl     time.Duration
}

// NewInProcessRegistry returns a Registry with ttl (clamped up to
// MinTTL, per spec.md §9).
func NewInProcessRegistry(ttl time.Duration) *InProcessRegistry {
	if ttl < MinTTL {
		ttl = MinTTL
	}
	return &InProcessRegistry{entries: make(map[Key]entry), ttl: ttl}
}

func (r *InProcessRegistry) SetStatus(_ context.Context, key Key, status task.FileStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = entry{status: status, expiresAt: time.Now().Add(r.ttl)}
	return nil
}

func (r *InProcessRegistry) GetStatus(_ context.Context, key Key) (task.FileStatus, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return task.FileStatus{}, false, nil
	}
	if time.Now().After(e.expiresAt) {
		delete(r.entries, key)
		return task.FileStatus{}, false, nil
	}
	return e.status, true, nil
}

func (r *InProcessRegistry) DeleteTask(_ context.Context, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.entries {
		if key.TaskID == taskID {
			delete(r.entries, key)
		}
	}
	return nil
}
