package cache

import (
	"context"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// PresenceCache 记录订阅某文档的在线用户，只用于展示，不参与权限和同步
type PresenceCache interface {
	AddMember(ctx context.Context, docID string, userID uint64, username string, ttl time.Duration) error
	RemoveMember(ctx context.Context, docID string, userID uint64) error
	GetAliveMembersWithNames(ctx context.Context, docID string) ([]PresenceMember, error)
}

type PresenceMember struct {
	UserID   uint64 `json:"userId"`
	Username string `json:"username,omitempty"`
}

// 具体实现：基于 redis 的 PresenceCache（单机和集群客户端都可以）
type redisPresence struct {
	rdb redis.UniversalClient
}

func NewRedisPresence(rdb redis.UniversalClient) PresenceCache {
	return &redisPresence{rdb: rdb}
}

// 清理过期成员
// KEYS[1] = roomKey(docID), KEYS[2] = namesKey(docID), ARGV[1] = now (unix seconds)
var cleanupScript = redis.NewScript(`
local expired = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
if #expired > 0 then
	redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
	redis.call("HDEL", KEYS[2], unpack(expired))
end
return #expired
`)

func (p *redisPresence) AddMember(ctx context.Context, docID string, userID uint64, username string, ttl time.Duration) error {
	// 刷新 TTL 也直接调用 AddMember
	tx := p.rdb.TxPipeline()
	expireAt := time.Now().Add(ttl).Unix()
	tx.ZAdd(ctx, roomKey(docID), redis.Z{Score: float64(expireAt), Member: userID})
	tx.HSet(ctx, namesKey(docID), userID, username)
	_, err := tx.Exec(ctx)
	return err
}

func (p *redisPresence) RemoveMember(ctx context.Context, docID string, userID uint64) error {
	tx := p.rdb.TxPipeline()
	tx.ZRem(ctx, roomKey(docID), userID)
	tx.HDel(ctx, namesKey(docID), strconv.FormatUint(userID, 10))
	_, err := tx.Exec(ctx)
	return err
}

func (p *redisPresence) GetAliveMembersWithNames(ctx context.Context, docID string) ([]PresenceMember, error) {
	// score=expireAt（Unix 秒），expireAt <= now 视为过期
	now := time.Now().Unix()
	if err := cleanupScript.Run(ctx, p.rdb, []string{roomKey(docID), namesKey(docID)}, now).Err(); err != nil && err != redis.Nil {
		return nil, err
	}

	aliveIDs, err := p.rdb.ZRangeByScore(ctx, roomKey(docID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now, 10), // > now
		Max: "+inf",
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	if len(aliveIDs) == 0 {
		return []PresenceMember{}, nil
	}

	names, err := p.rdb.HMGet(ctx, namesKey(docID), aliveIDs...).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	members := make([]PresenceMember, 0, len(aliveIDs))
	for i, id := range aliveIDs {
		uid, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			continue
		}
		name := ""
		if i < len(names) && names[i] != nil {
			name, _ = names[i].(string)
		}
		members = append(members, PresenceMember{UserID: uid, Username: name})
	}
	return members, nil
}
