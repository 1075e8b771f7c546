// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"imagefield/internal/render"
)

// DefaultQueueKey is the Valkey list holding pending render jobs.
const DefaultQueueKey = "render:jobs"

// RenderQueue is a FIFO of render jobs on a Valkey list: producers RPUSH,
// workers BLPOP. A job popped by a worker that then crashes is lost; the
// batch command recovers any variation left missing.
type RenderQueue struct {
	client *redis.Client
	key    string
}

// NewRenderQueue creates a queue on the given list key.
func NewRenderQueue(client *redis.Client, key string) *RenderQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RenderQueue{client: client, key: key}
}

// Enqueue appends a job.
func (q *RenderQueue) Enqueue(ctx context.Context, job render.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode render job: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("enqueue render job: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next job. It returns (nil, nil) when
// the timeout elapses without a job.
func (q *RenderQueue) Dequeue(ctx context.Context, timeout time.Duration) (*render.Job, error) {
	res, err := q.client.BLPop(ctx, timeout, q.key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue render job: %w", err)
	}
	// BLPOP replies with [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("dequeue render job: unexpected reply of %d elements", len(res))
	}
	var job render.Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("decode render job: %w", err)
	}
	return &job, nil
}

// Len returns the number of pending jobs.
func (q *RenderQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("render queue length: %w", err)
	}
	return n, nil
}
