package cache

import "fmt"

// 键语义：
// - roomKey(docID):           文档在线成员（ZSet<userId, expireAtUnix>，score=expireAt）
// - namesKey(docID):          文档内 userId→username 映射（Hash）
// - permKey(docID, userID):   分享权限缓存（String: edit/view/空值标记）
// - permGenKey(docID, userID): 权限缓存代数（String 计数），Invalidate 时 INCR
//
// {docID:%s} 作为 hash tag，让同一文档的键落在同一个 slot，Lua 脚本才能同时操作

const (
	keyRoomFmt  = "presence:room:{docID:%s}"       // ZSet<userId, expireAtUnix>
	keyNamesFmt = "presence:room:names:{docID:%s}" // Hash<userId -> username>
	keyPermFmt  = "share:perm:{docID:%s}:%d"       // String
	keyPermGen  = "share:perm:gen:{docID:%s}:%d"   // String(int)
)

func roomKey(docID string) string  { return fmt.Sprintf(keyRoomFmt, docID) }
func namesKey(docID string) string { return fmt.Sprintf(keyNamesFmt, docID) }
func permKey(docID string, userID uint64) string {
	return fmt.Sprintf(keyPermFmt, docID, userID)
}
func permGenKey(docID string, userID uint64) string {
	return fmt.Sprintf(keyPermGen, docID, userID)
}
