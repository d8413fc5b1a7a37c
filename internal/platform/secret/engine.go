// Package secret 提供对称加密引擎：用一把进程级密钥对明文做 AEAD 加解密，
// 并为明文生成带密钥的指纹（用于去重索引，不暴露明文内容）。
package secret

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
)

const keySize = chacha20poly1305.KeySize // 32 字节（256 位）

// ErrKeyFile：密钥文件存在但不可用（读不到 / 不是 base64 / 长度不对）。
// 启动阶段遇到它必须直接退出：没有正确的密钥，存量数据全部解不开，
// 换一把新密钥继续跑只会写出一堆和旧数据混在一起的“新密文”。
var ErrKeyFile = errors.New("secret: invalid key file")

// ErrDecryption：密文太短、认证失败（被篡改或密钥不对）、或解出的不是合法文本。
var ErrDecryption = errors.New("secret: decryption failed")

// ErrEncryption：加密路径失败（随机数源不可用等，实际几乎不会发生）。
var ErrEncryption = errors.New("secret: encryption failed")

// Engine 持有密钥与 AEAD 实例。构造完成后只读，可以被所有请求并发共享。
//
// 密文格式：nonce(12 字节) ‖ ciphertext‖tag(16 字节)。
// 每次 Encrypt 生成新的随机 nonce —— 同一把密钥下 nonce 重复会破坏
// AEAD 的保密性与完整性保证，所以 nonce 只能用一次。
type Engine struct {
	aead cipher.AEAD
	key  [keySize]byte
}

// New 构造加密引擎。
//
// 密钥生命周期：keyFile 不存在时生成 256 位随机密钥并以 base64 文本写入
// （0600 权限），之后每次启动都从该文件加载。文件内容长度不对时返回
// ErrKeyFile，调用方应当中止启动。
func New(keyFile string) (*Engine, error) {
	key, err := loadOrGenerateKey(keyFile)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFile, err)
	}
	return &Engine{aead: aead, key: key}, nil
}

func loadOrGenerateKey(keyFile string) ([keySize]byte, error) {
	var key [keySize]byte

	encoded, err := os.ReadFile(keyFile)
	switch {
	case err == nil:
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(encoded)))
		if err != nil {
			return key, fmt.Errorf("%w: decode %s: %v", ErrKeyFile, keyFile, err)
		}
		if len(raw) != keySize {
			return key, fmt.Errorf("%w: %s holds %d bytes, want %d", ErrKeyFile, keyFile, len(raw), keySize)
		}
		copy(key[:], raw)
		return key, nil

	case errors.Is(err, os.ErrNotExist):
		if _, err := rand.Read(key[:]); err != nil {
			return key, fmt.Errorf("%w: generate key: %v", ErrKeyFile, err)
		}
		// 先持久化再接受任何加解密调用：密钥写盘失败时绝不能带着
		// 一把只存在于内存里的密钥开始写数据。
		encoded := base64.StdEncoding.EncodeToString(key[:])
		if err := os.WriteFile(keyFile, []byte(encoded), 0o600); err != nil {
			return key, fmt.Errorf("%w: write %s: %v", ErrKeyFile, keyFile, err)
		}
		return key, nil

	default:
		return key, fmt.Errorf("%w: read %s: %v", ErrKeyFile, keyFile, err)
	}
}

// Encrypt 用新的随机 nonce 封装明文，返回 nonce ‖ ciphertext‖tag。
func (e *Engine) Encrypt(plaintext string) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize(), e.aead.NonceSize()+len(plaintext)+e.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrEncryption, err)
	}
	return e.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Decrypt 还原 Encrypt 的输出。同一把密钥和同一段密文下结果是确定的。
func (e *Engine) Decrypt(blob []byte) (string, error) {
	if len(blob) < e.aead.NonceSize() {
		return "", fmt.Errorf("%w: blob shorter than nonce", ErrDecryption)
	}
	nonce, ciphertext := blob[:e.aead.NonceSize()], blob[e.aead.NonceSize():]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	if !utf8.Valid(plaintext) {
		return "", fmt.Errorf("%w: plaintext is not valid utf-8", ErrDecryption)
	}
	return string(plaintext), nil
}

// Fingerprint 返回 data 的带密钥 BLAKE2b-256 摘要（hex 编码）。
//
// 摘要是确定性的：同一密钥下同一输入永远得到同一指纹，适合做等值索引；
// 但不知道密钥就无法离线枚举猜测 URL，所以索引本身不泄露明文。
func (e *Engine) Fingerprint(data string) string {
	h, err := blake2b.New256(e.key[:])
	if err != nil {
		// key 长度固定 32 字节，blake2b 只在 key 超长时报错。
		panic("secret: blake2b init: " + err.Error())
	}
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}
