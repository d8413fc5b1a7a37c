package cache

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// NotFoundSentinel 是负缓存哨兵值：表示“确定不存在”，而不是“未命中”。
// 不要用 "" 作哨兵（可读性差，也容易把“未命中”和“命中空值”混淆）。
const NotFoundSentinel = "__nil__"

// LocalCache 基于 ristretto 的本地内存缓存，缓存 短码 -> 明文 URL。
//
// 缓存只存在于进程内存里，不落盘，所以不影响“存储层密文”的安全假设。
type LocalCache struct {
	cache    *ristretto.Cache[string, string]
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewLocalCache 创建本地缓存
// maxItems: 最大缓存条目数（建议 10000-100000）
// maxCost: 最大内存占用（字节，建议 16MB-64MB）
func NewLocalCache(maxItems int64, maxCost int64) (*LocalCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: maxItems * 10, // 计数器数量，建议为 maxItems 的 10 倍
		MaxCost:     maxCost,
		BufferItems: 64, // 每个 Get 缓冲区大小
	})
	if err != nil {
		return nil, err
	}
	return &LocalCache{
		cache:    cache,
		ttl:      5 * time.Minute,  // 映射不可变，TTL 主要是控制内存占用
		emptyTTL: 10 * time.Second, // 负缓存 TTL
	}, nil
}

func (l *LocalCache) Get(code string) (string, bool) {
	return l.cache.Get(code)
}

func (l *LocalCache) Set(code, url string) {
	// cost=1 表示按条目数限制
	l.cache.SetWithTTL(code, url, 1, l.ttl)
}

func (l *LocalCache) SetNotFound(code string) {
	l.cache.SetWithTTL(code, NotFoundSentinel, 1, l.emptyTTL)
}

func (l *LocalCache) Del(code string) {
	l.cache.Del(code)
}

func (l *LocalCache) Close() {
	l.cache.Close()
}
