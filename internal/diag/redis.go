package diag

import (
	"context"
	"strconv"
	"time"

	"github.com/dzm2020/regflow/internal/actor"
	"github.com/dzm2020/regflow/internal/errs"
	"github.com/dzm2020/regflow/pkg/utils/serializer"
	"github.com/go-redis/redis/v8"
)

// RedisReporter 把快照写进一个 redis hash，field 是 actor id，value 是编码后的快照
type RedisReporter struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	codec  serializer.ICodec
}

// NewRedisReporter ttl 为 0 表示不过期；codec 为 json 或 msgpack
func NewRedisReporter(addr, key string, ttl time.Duration, codec string) (*RedisReporter, error) {
	c := serializer.Get(codec)
	if c == nil {
		return nil, errs.Wrapf(errs.ErrInvalidConfig, "unknown snapshot codec %q", codec)
	}
	return &RedisReporter{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		key:    key,
		ttl:    ttl,
		codec:  c,
	}, nil
}

func (r *RedisReporter) Key() string { return r.key }

func (r *RedisReporter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisReporter) Report(ctx context.Context, snaps []actor.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	values := make([]interface{}, 0, 2*len(snaps))
	for _, s := range snaps {
		data, err := r.codec.Marshal(s)
		if err != nil {
			return errs.Wrapf(err, "marshal snapshot of actor %d", s.ID)
		}
		values = append(values, strconv.FormatInt(s.ID, 10), data)
	}
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.key, values...)
	if r.ttl > 0 {
		pipe.Expire(ctx, r.key, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return errs.Wrapf(err, "hset %s", r.key)
}

// Load 读回全部快照，按 field 解码
func (r *RedisReporter) Load(ctx context.Context) (map[int64]actor.Snapshot, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, errs.Wrapf(err, "hgetall %s", r.key)
	}
	out := make(map[int64]actor.Snapshot, len(fields))
	for k, v := range fields {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, errs.Wrapf(err, "field %s", k)
		}
		var s actor.Snapshot
		if err = r.codec.Unmarshal([]byte(v), &s); err != nil {
			return nil, errs.Wrapf(err, "unmarshal snapshot of actor %d", id)
		}
		out[id] = s
	}
	return out, nil
}

// Clear 删除 hash
func (r *RedisReporter) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}

func (r *RedisReporter) Close() error {
	return r.client.Close()
}
