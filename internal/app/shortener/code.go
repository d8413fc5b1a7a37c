package shortener

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// codeLength 是系统生成短码的长度。
// nanoid 默认字母表是 A-Za-z0-9_- 共 64 个字符，6 位有 64^6 ≈ 687 亿种组合；
// 即便如此撞车仍然可能，写入路径用 PutIfAbsent 检测冲突并换码重试。
const codeLength = 6

// NewCode 生成一个随机短码（crypto/rand 驱动，无需担心可预测性）。
func NewCode() (string, error) {
	return gonanoid.New(codeLength)
}
