package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const warnedKeyPrefix = "onboarding:sla:warned:"

// WarningFilter drops at-risk cases that were already announced, so a case
// sitting in the warning window is not re-announced on every tick.
type WarningFilter interface {
	Fresh(ctx context.Context, caseIDs []string) ([]string, error)
}

// RedisWarningFilter remembers announced cases for the length of the warning
// window.
type RedisWarningFilter struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisWarningFilter builds a filter whose marks expire after ttl.
func NewRedisWarningFilter(client redis.Cmdable, ttl time.Duration) *RedisWarningFilter {
	return &RedisWarningFilter{client: client, ttl: ttl}
}

// Fresh marks every id and returns the ones that were not marked before.
func (f *RedisWarningFilter) Fresh(ctx context.Context, caseIDs []string) ([]string, error) {
	if len(caseIDs) == 0 {
		return nil, nil
	}
	pipe := f.client.Pipeline()
	cmds := make([]*redis.BoolCmd, len(caseIDs))
	for i, id := range caseIDs {
		cmds[i] = pipe.SetNX(ctx, warnedKeyPrefix+id, 1, f.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("mark sla warnings: %w", err)
	}

	var fresh []string
	for i, cmd := range cmds {
		if cmd.Val() {
			fresh = append(fresh, caseIDs[i])
		}
	}
	return fresh, nil
}

// passWarnings announces every at-risk case on every tick.
type passWarnings struct{}

func (passWarnings) Fresh(_ context.Context, caseIDs []string) ([]string, error) {
	return caseIDs, nil
}
