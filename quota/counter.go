package quota

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// Counter は日次クォータに使うキー・バリューストアの操作です。
type Counter interface {
	Get(ctx context.Context, key string) (int64, bool, error)
	// Incr は加算し、有効期限が無ければttlを付けます。
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// DecrIfPositive はキーが存在し値が正のときだけ減算します。減算しなかった場合はfalse
	DecrIfPositive(ctx context.Context, key string) (int64, bool, error)
}

// INCRとEXPIREを1回の往復で実行する。TTLが無いキー(EXPIRE失敗後を含む)にも期限を付け直す
var incrScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if redis.call('TTL', KEYS[1]) < 0 then
  redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// 期限切れと競合しても負の値やTTL無しのキーを作らない
var decrScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v or tonumber(v) <= 0 then
  return -1
end
return redis.call('DECR', KEYS[1])
`)

// RedisCounter はRedisのGETとLuaスクリプトで実装したCounterです。
type RedisCounter struct {
	rdb *redis.Client
}

func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

// Get はキーが存在しない場合 (0, false, nil) を返します。
func (c *RedisCounter) Get(ctx context.Context, key string) (int64, bool, error) {
	n, err := c.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func (c *RedisCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return incrScript.Run(ctx, c.rdb, []string{key}, int64(ttl/time.Second)).Int64()
}

func (c *RedisCounter) DecrIfPositive(ctx context.Context, key string) (int64, bool, error) {
	n, err := decrScript.Run(ctx, c.rdb, []string{key}).Int64()
	if err != nil {
		return 0, false, err
	}
	if n < 0 {
		return 0, false, nil
	}
	return n, true, nil
}
