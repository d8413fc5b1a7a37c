package shortener

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidURL 是领域层对“URL 不合法”的统一错误。
//
// 设计原因：
// - 上层（HTTP）可以稳定地把它映射成 400，而不需要关心底层校验细节
// - 统一错误类型，避免各处返回不同字符串导致难以判断/测试
var ErrInvalidURL = errors.New("invalid url")
var ErrInvalidAlias = errors.New("invalid alias")

// NormalizeURL 校验用户输入的 URL 并返回规范形式。
// 规范形式用于存储和所有等值比较（去重、别名幂等判断）。
//
// 规则：
// - 必须是绝对 URL：scheme 为 http/https，host 非空
// - scheme 和 host 统一小写（大小写不同的同一地址要判为同一 URL）
// - 空 path 归一为 "/"（https://example.com 和 https://example.com/ 是同一资源）
// - 其余部分交给 net/url 重新编码，保证百分号编码形式一致
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", ErrInvalidURL
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrInvalidURL
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", ErrInvalidURL
	}
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

var aliasRe = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)

// ValidateAlias 校验用户自定义短码：长度 3~32，仅允许字母/数字/“-”/“_”。
func ValidateAlias(alias string) error {
	if !aliasRe.MatchString(alias) {
		return ErrInvalidAlias
	}
	return nil
}
