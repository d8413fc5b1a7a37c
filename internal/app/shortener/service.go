// Package shortener 实现加密短链映射的业务规则：
// 提交的 URL 如何落到一个短码上（自定义别名 / 随机生成 / 复用已有映射），
// 以及短码如何解析回明文 URL。
package shortener

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"slink.local/internal/app/shortener/cache"
	"slink.local/internal/platform/kv"
	"slink.local/internal/platform/metrics"
	"slink.local/internal/platform/secret"
)

// ErrAliasExists：自定义别名已绑定到另一个 URL。
var ErrAliasExists = errors.New("alias already exists")

// ErrNotFound：短码未注册。
var ErrNotFound = errors.New("short code not found")

// 键空间布局（同一个 KV 实例里用前缀分开）：
// - c:<code>            -> base64(nonce‖ciphertext‖tag)，短码到密文的主映射
// - u:<hex fingerprint> -> code，规范化 URL 的带密钥指纹到短码的去重索引
//
// 去重索引替代了“全库扫描逐条解密比对”的做法：查一次索引就能回答
// “这个 URL 是否已有短码”，而且索引值是带密钥哈希，不泄露 URL 本身。
const (
	codePrefix = "c:"
	urlPrefix  = "u:"
)

func codeKey(code string) []byte { return []byte(codePrefix + code) }

func urlKey(fingerprint string) []byte { return []byte(urlPrefix + fingerprint) }

// maxMintAttempts 限制随机短码撞车后的重试次数。
// 64^6 的码空间里连撞多次基本只可能是存储坏了，直接报错比死循环好。
const maxMintAttempts = 5

// ShortenedURL 是返回给调用方的瞬态结果，不作为实体持久化。
type ShortenedURL struct {
	ShortCode   string
	OriginalURL string
	ShortURL    string
}

// Service 编排校验、别名处理、去重、短码生成和读路径。
//
// 并发模型：store 自带内部同步，engine 构造后只读，local/filter 自身加锁，
// 所以 Service 不持有任何锁，可以被任意多个请求并发调用。
type Service struct {
	store   kv.Store
	engine  *secret.Engine
	baseURL string
	local   *cache.LocalCache  // 可以为 nil
	filter  *cache.BloomFilter // 可以为 nil

	// newCode 默认是 NewCode，测试里替换它来构造短码撞车。
	newCode func() (string, error)
}

func NewService(store kv.Store, engine *secret.Engine, baseURL string, local *cache.LocalCache, filter *cache.BloomFilter) *Service {
	return &Service{
		store:   store,
		engine:  engine,
		baseURL: strings.TrimRight(baseURL, "/"),
		local:   local,
		filter:  filter,
		newCode: NewCode,
	}
}

// WarmFilter 启动时把存量短码灌进布隆过滤器，返回灌入条数。
// 过滤器是空的时候解析路径会放过所有短码去查存储，属于性能问题而非正确性问题。
func (s *Service) WarmFilter(ctx context.Context) (int, error) {
	if s.filter == nil {
		return 0, nil
	}
	n := 0
	err := s.store.Scan(ctx, []byte(codePrefix), func(key, _ []byte) error {
		s.filter.Add(string(key[len(codePrefix):]))
		n++
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("warm filter: %w", err)
	}
	return n, nil
}

// Shorten 处理一次缩短请求。customAlias 为空表示由系统生成短码。
//
// 分支顺序是产品的冲突解决策略，不能调换：
//  1. 校验并规范化 URL
//  2. 有别名：校验别名形状，再查别名 ——
//     不存在则把别名当作选定短码去写入；
//     已存在且解密后是同一 URL 则幂等返回；
//     已存在但绑定了别的 URL 则返回 ErrAliasExists
//  3. 无别名：查 URL 指纹索引，命中则复用已有短码（重复缩短同一 URL 永远拿到同一个短码）
//  4. 以上都没命中才真正铸造新映射
func (s *Service) Shorten(ctx context.Context, rawURL, customAlias string) (ShortenedURL, error) {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		metrics.ShortenTotal.WithLabelValues("invalid").Inc()
		return ShortenedURL{}, err
	}

	if alias := strings.TrimSpace(customAlias); alias != "" {
		if err := ValidateAlias(alias); err != nil {
			metrics.ShortenTotal.WithLabelValues("invalid").Inc()
			return ShortenedURL{}, err
		}

		existing, err := s.lookup(ctx, alias)
		switch {
		case err == nil:
			if existing == normalized {
				// 同一 (url, alias) 重复提交：幂等成功，不产生新写入。
				slog.Debug("alias already maps to requested url", "alias", alias)
				metrics.ShortenTotal.WithLabelValues("alias_reuse").Inc()
				return s.result(alias, normalized), nil
			}
			metrics.ShortenTotal.WithLabelValues("alias_conflict").Inc()
			return ShortenedURL{}, ErrAliasExists
		case errors.Is(err, kv.ErrNotFound):
			return s.mint(ctx, alias, normalized)
		default:
			metrics.ShortenTotal.WithLabelValues("error").Inc()
			return ShortenedURL{}, err
		}
	}

	// 去重：同一规范化 URL 不发两个短码。
	code, err := s.store.Get(ctx, urlKey(s.engine.Fingerprint(normalized)))
	switch {
	case err == nil:
		slog.Debug("url already shortened", "code", string(code))
		metrics.ShortenTotal.WithLabelValues("dedup").Inc()
		return s.result(string(code), normalized), nil
	case errors.Is(err, kv.ErrNotFound):
		return s.mint(ctx, "", normalized)
	default:
		metrics.ShortenTotal.WithLabelValues("error").Inc()
		return ShortenedURL{}, err
	}
}

// mint 铸造一个新映射。alias 非空时短码固定为 alias，否则每轮生成随机短码。
//
// 写入是一次 PutIfAbsent：短码条目和指纹索引条目要么都写进去，要么都不写，
// 所以一次成功的铸造对存储只有一次变更，失败的铸造没有任何可见副作用。
// 两个并发请求同时缩短同一个新 URL 时，PutIfAbsent 保证只有一个赢，
// 输家拿着赢家的短码返回 —— 去重约定在并发下依然成立。
func (s *Service) mint(ctx context.Context, alias, normalized string) (ShortenedURL, error) {
	blob, err := s.engine.Encrypt(normalized)
	if err != nil {
		metrics.ShortenTotal.WithLabelValues("error").Inc()
		return ShortenedURL{}, err
	}
	encoded := base64.StdEncoding.EncodeToString(blob)
	fpKey := urlKey(s.engine.Fingerprint(normalized))

	for attempt := 0; attempt < maxMintAttempts; attempt++ {
		code := alias
		if code == "" {
			if code, err = s.newCode(); err != nil {
				metrics.ShortenTotal.WithLabelValues("error").Inc()
				return ShortenedURL{}, fmt.Errorf("generate code: %w", err)
			}
		}

		entries := []kv.Entry{{Key: codeKey(code), Value: []byte(encoded)}}
		// 指纹索引指向该 URL 最早的短码。索引里已经有这个 URL 时
		// （例如 URL 先被随机短码收录，之后又有人给它起别名）不去覆盖。
		switch fpVal, err := s.store.Get(ctx, fpKey); {
		case errors.Is(err, kv.ErrNotFound):
			entries = append(entries, kv.Entry{Key: fpKey, Value: []byte(code)})
		case err != nil:
			metrics.ShortenTotal.WithLabelValues("error").Inc()
			return ShortenedURL{}, err
		default:
			if alias == "" {
				// 并发请求抢先收录了同一 URL：复用对方的短码，不再铸造。
				metrics.ShortenTotal.WithLabelValues("dedup").Inc()
				return s.result(string(fpVal), normalized), nil
			}
		}

		conflict, err := s.store.PutIfAbsent(ctx, entries...)
		if err != nil {
			metrics.ShortenTotal.WithLabelValues("error").Inc()
			return ShortenedURL{}, err
		}
		if conflict == nil {
			if s.filter != nil {
				s.filter.Add(code)
			}
			if s.local != nil {
				// 覆盖可能存在的负缓存，短码立即可解析。
				s.local.Set(code, normalized)
			}
			metrics.ShortenTotal.WithLabelValues("minted").Inc()
			return s.result(code, normalized), nil
		}

		if bytes.Equal(conflict, fpKey) {
			// 去重竞态输了：另一个请求刚刚收录了同一 URL。
			// 重试一轮，循环开头会读到赢家的短码（无别名）或跳过索引条目（有别名）。
			continue
		}

		// 短码条目冲突。
		if alias != "" {
			// 别名刚被并发占用，按 Shorten 的别名规则重新判定。
			existing, err := s.lookup(ctx, alias)
			switch {
			case err == nil && existing == normalized:
				metrics.ShortenTotal.WithLabelValues("alias_reuse").Inc()
				return s.result(alias, normalized), nil
			case err == nil:
				metrics.ShortenTotal.WithLabelValues("alias_conflict").Inc()
				return ShortenedURL{}, ErrAliasExists
			case errors.Is(err, kv.ErrNotFound):
				continue
			default:
				metrics.ShortenTotal.WithLabelValues("error").Inc()
				return ShortenedURL{}, err
			}
		}
		// 随机短码撞上了已有映射：换一个码重试。
		slog.Warn("generated code collision, retrying", "code", code, "attempt", attempt+1)
	}

	metrics.ShortenTotal.WithLabelValues("error").Inc()
	return ShortenedURL{}, errors.New("shorten: too many short code collisions")
}

// Resolve 把短码解析回明文 URL。短码未注册时返回 ErrNotFound。
// 读路径没有任何写副作用（缓存除外）。
func (s *Service) Resolve(ctx context.Context, code string) (string, error) {
	if s.local != nil {
		if url, ok := s.local.Get(code); ok {
			if url == cache.NotFoundSentinel {
				metrics.CacheOperations.WithLabelValues("local", "hit_negative").Inc()
				return "", ErrNotFound
			}
			metrics.CacheOperations.WithLabelValues("local", "hit").Inc()
			return url, nil
		}
		metrics.CacheOperations.WithLabelValues("local", "miss").Inc()
	}

	if s.filter != nil && !s.filter.MightExist(code) {
		// 布隆过滤器说“一定不存在”就是一定不存在，可以直接 404。
		metrics.CacheOperations.WithLabelValues("bloom", "reject").Inc()
		return "", ErrNotFound
	}

	url, err := s.lookup(ctx, code)
	if errors.Is(err, kv.ErrNotFound) {
		if s.local != nil {
			s.local.SetNotFound(code)
		}
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}

	if s.local != nil {
		s.local.Set(code, url)
	}
	return url, nil
}

// lookup 读出 code 对应的密文并解密。code 不存在时透传 kv.ErrNotFound。
func (s *Service) lookup(ctx context.Context, code string) (string, error) {
	value, err := s.store.Get(ctx, codeKey(code))
	if err != nil {
		return "", err
	}
	blob, err := base64.StdEncoding.DecodeString(string(value))
	if err != nil {
		return "", fmt.Errorf("decode stored ciphertext for %q: %w", code, err)
	}
	return s.engine.Decrypt(blob)
}

func (s *Service) result(code, normalized string) ShortenedURL {
	return ShortenedURL{
		ShortCode:   code,
		OriginalURL: normalized,
		ShortURL:    s.baseURL + "/" + code,
	}
}
