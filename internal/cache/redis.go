package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/nsip/otf-outcomes/calc"
	"github.com/pkg/errors"
)

// DefaultKey is where the grouping is stored unless overridden.
const DefaultKey = "otf-outcomes:outcome-groups"

//
// Redis shares one grouping between service instances under a single
// key. The threshold travels inside the stored document, so a read for
// another threshold is a miss.
//
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedis(client *redis.Client, key string, ttl time.Duration) *Redis {
	if key == "" {
		key = DefaultKey
	}
	return &Redis{client: client, key: key, ttl: ttl}
}

// DialRedis connects to addr and checks the server answers.
func DialRedis(ctx context.Context, addr string, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "cannot reach redis at %s", addr)
	}
	return NewRedis(client, DefaultKey, ttl), nil
}

func (r *Redis) Get(ctx context.Context, threshold float64) (*calc.OutcomeGrouping, bool, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "redis get outcome groups")
	}

	g := &calc.OutcomeGrouping{}
	if err := json.Unmarshal(data, g); err != nil {
		return nil, false, errors.Wrap(err, "cannot decode cached outcome groups")
	}
	if g.Threshold != threshold {
		return nil, false, nil
	}
	return g, true, nil
}

func (r *Redis) Put(ctx context.Context, g *calc.OutcomeGrouping) error {
	data, err := json.Marshal(g)
	if err != nil {
		return errors.Wrap(err, "cannot encode outcome groups")
	}
	if err := r.client.Set(ctx, r.key, data, r.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set outcome groups")
	}
	return nil
}

func (r *Redis) Invalidate(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return errors.Wrap(err, "redis del outcome groups")
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
