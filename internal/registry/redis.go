package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lsilvatti/modxlate/internal/task"
)

// RedisRegistry is the cross-process Registry: the completion-tracking
// rendezvous between a cmd/worker pool and the cmd/coordinator process
// polling it (spec.md §6, §9) has to live outside either process, the
// same way internal/store's SQLite file and internal/bus's RabbitMQ
// queue already do. Grounded on
// original_source/utlis/redis_lib.py's get_redis_connection and the
// §6 key shape ("file_task:{task_id}:{file_id}:status"), using
// github.com/redis/go-redis/v9 (the AMQP client's sibling in the wider
// pack's manifests).
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRegistry builds a RedisRegistry against an already-dialed
// client, with ttl clamped up to MinTTL the same way
// NewInProcessRegistry clamps its fixed TTL.
func NewRedisRegistry(client *redis.Client, ttl time.Duration) *RedisRegistry {
	if ttl < MinTTL {
		ttl = MinTTL
	}
	return &RedisRegistry{client: client, ttl: ttl}
}

// DialRedis opens a client against addr (host:port) using db and an
// optional password, mirroring get_redis_connection's host/port/db/
// password parameters.
func DialRedis(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func statusKey(key Key) string {
	return fmt.Sprintf("file_task:%s:%s:status", key.TaskID, key.FileID)
}

// taskIndexKey holds the set of file_ids seen for a task, so
// DeleteTask doesn't need a KEYS/SCAN sweep to find what to remove.
func taskIndexKey(taskID string) string {
	return fmt.Sprintf("file_task:%s:__index", taskID)
}

func (r *RedisRegistry) SetStatus(ctx context.Context, key Key, status task.FileStatus) error {
	body, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("registry: marshal status for %s/%s: %w", key.TaskID, key.FileID, err)
	}

	ttl := r.ttl
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, statusKey(key), body, ttl)
	pipe.SAdd(ctx, taskIndexKey(key.TaskID), key.FileID)
	pipe.Expire(ctx, taskIndexKey(key.TaskID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("registry: set status for %s/%s: %w", key.TaskID, key.FileID, err)
	}
	return nil
}

func (r *RedisRegistry) GetStatus(ctx context.Context, key Key) (task.FileStatus, bool, error) {
	body, err := r.client.Get(ctx, statusKey(key)).Bytes()
	if err == redis.Nil {
		return task.FileStatus{}, false, nil
	}
	if err != nil {
		return task.FileStatus{}, false, fmt.Errorf("registry: get status for %s/%s: %w", key.TaskID, key.FileID, err)
	}

	var status task.FileStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return task.FileStatus{}, false, fmt.Errorf("registry: unmarshal status for %s/%s: %w", key.TaskID, key.FileID, err)
	}
	return status, true, nil
}

func (r *RedisRegistry) DeleteTask(ctx context.Context, taskID string) error {
	indexKey := taskIndexKey(taskID)
	fileIDs, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("registry: list file ids for task %s: %w", taskID, err)
	}

	keys := make([]string, 0, len(fileIDs)+1)
	for _, fileID := range fileIDs {
		keys = append(keys, statusKey(Key{TaskID: taskID, FileID: fileID}))
	}
	keys = append(keys, indexKey)

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("registry: delete task %s: %w", taskID, err)
	}
	return nil
}
