package cache

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"docSyncServer/backend/internal/entity"
)

const (
	BaseTTL     = 10 * time.Minute // 基础过期时间
	Jitter      = 2 * time.Minute  // 随机抖动范围
	NullTTL     = 1 * time.Minute  // 空值缓存时间
	GenTTL      = 1 * time.Hour    // 代数键存活时间，必须远大于一次回源耗时
	emptyMarker = "-"              // 空值标记：没有分享记录
)

// 回源期间代数没变才写回，Invalidate 之后读到旧行的回源结果直接丢弃
// KEYS[1]=permKey KEYS[2]=genKey ARGV[1]=回源前读到的代数 ARGV[2]=值 ARGV[3]=ttl(ms)
var setIfGenScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[2])
if not cur then cur = '0' end
if cur ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// KEYS[1]=permKey KEYS[2]=genKey ARGV[1]=代数 ttl(ms)
var invalidateScript = redis.NewScript(`
redis.call('DEL', KEYS[1])
redis.call('INCR', KEYS[2])
redis.call('PEXPIRE', KEYS[2], ARGV[1])
return 1
`)

// PermissionLoader 回源查询；ok=false 表示没有分享记录
type PermissionLoader func() (perm entity.Permission, ok bool, err error)

// PermissionCache 分享权限的读穿缓存，Share/Unshare 之后必须 Invalidate
type PermissionCache interface {
	GetOrLoad(ctx context.Context, docID string, userID uint64, load PermissionLoader) (entity.Permission, bool, error)
	Invalidate(ctx context.Context, docID string, userID uint64) error
}

type redisPermission struct {
	rdb redis.UniversalClient
	sf  singleflight.Group
}

func NewRedisPermission(rdb redis.UniversalClient) PermissionCache {
	return &redisPermission{rdb: rdb}
}

type permResult struct {
	perm entity.Permission
	ok   bool
}

// 获取随机TTL，防止缓存雪崩
func randomTTL() time.Duration {
	return BaseTTL + time.Duration(rand.Int63n(int64(Jitter)))
}

func (r *redisPermission) GetOrLoad(ctx context.Context, docID string, userID uint64, load PermissionLoader) (entity.Permission, bool, error) {
	key := permKey(docID, userID)
	// 同一个 key 的并发回源合并成一次
	val, err, _ := r.sf.Do(key, func() (interface{}, error) {
		cached, err := r.rdb.Get(ctx, key).Result()
		if err == nil {
			if cached == emptyMarker {
				return permResult{}, nil
			}
			return permResult{perm: entity.Permission(cached), ok: true}, nil
		}
		// redis 不可用时直接回源，缓存只是加速
		gen, genErr := r.generation(ctx, docID, userID)

		perm, ok, err := load()
		if err != nil {
			return permResult{}, err
		}
		if genErr != nil {
			return permResult{perm: perm, ok: ok}, nil
		}
		if !ok {
			// 空值缓存，防止缓存穿透
			r.storeIfCurrent(ctx, docID, userID, gen, emptyMarker, NullTTL)
			return permResult{}, nil
		}
		r.storeIfCurrent(ctx, docID, userID, gen, string(perm), randomTTL())
		return permResult{perm: perm, ok: true}, nil
	})
	if err != nil {
		return "", false, err
	}
	res, ok := val.(permResult)
	if !ok {
		return "", false, errors.New("internal type error")
	}
	return res.perm, res.ok, nil
}

func (r *redisPermission) generation(ctx context.Context, docID string, userID uint64) (string, error) {
	gen, err := r.rdb.Get(ctx, permGenKey(docID, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return gen, err
}

func (r *redisPermission) storeIfCurrent(ctx context.Context, docID string, userID uint64, gen, val string, ttl time.Duration) {
	keys := []string{permKey(docID, userID), permGenKey(docID, userID)}
	_ = setIfGenScript.Run(ctx, r.rdb, keys, gen, val, ttl.Milliseconds()).Err()
}

// Invalidate 删除缓存并推进代数，正在回源的旧结果不会再写回
func (r *redisPermission) Invalidate(ctx context.Context, docID string, userID uint64) error {
	keys := []string{permKey(docID, userID), permGenKey(docID, userID)}
	return invalidateScript.Run(ctx, r.rdb, keys, GenTTL.Milliseconds()).Err()
}
