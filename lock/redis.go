package lock

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis is a distributed Locker built on SET key value NX EX ttl, the
// standard Redis mutex recipe, matching how
// r3e-network-service_layer's infrastructure layer depends on
// github.com/go-redis/redis/v8 directly for cross-process coordination.
//
// This is a best-effort mutex, not a consensus protocol (spec.md §13/
// Non-goals): it does not defend against clock skew between the lock
// holder and a watchdog, nor does it implement fencing tokens. It is
// sufficient for the single failure mode spec.md §5 actually describes
// — "multiple hosts attempting to step the same machine".
type Redis struct {
	client *redis.Client
	token  string
}

// NewRedis wraps an existing *redis.Client. token identifies this
// process/owner so Release (via the returned closure) only clears locks
// this instance itself acquired.
func NewRedis(client *redis.Client, token string) *Redis {
	return &Redis{client: client, token: token}
}

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Acquire implements eventmachine.Locker.
func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	ok, err := r.client.SetNX(ctx, key, r.token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		r.client.Eval(context.Background(), releaseScript, []string{key}, r.token)
	}
	return release, true, nil
}
