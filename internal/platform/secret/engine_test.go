package secret

import (
	"bytes"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	keyFile := filepath.Join(t.TempDir(), "encryption.key")
	engine, err := New(keyFile)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return engine, keyFile
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	engine, _ := newTestEngine(t)

	for _, plaintext := range []string{
		"https://example.com/",
		"https://example.com/path?q=%E4%B8%AD%E6%96%87",
		"",
	} {
		blob, err := engine.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plaintext, err)
		}
		got, err := engine.Decrypt(blob)
		if err != nil {
			t.Fatalf("Decrypt(%q): %v", plaintext, err)
		}
		if got != plaintext {
			t.Fatalf("round trip: got %q, want %q", got, plaintext)
		}
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	engine, _ := newTestEngine(t)

	a, err := engine.Encrypt("https://example.com/")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := engine.Encrypt("https://example.com/")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	// nonce 每次都要新生成，同样的明文两次加密的输出必须不同。
	if bytes.Equal(a, b) {
		t.Fatal("two encryptions of the same plaintext produced identical blobs")
	}
}

func TestDecryptDetectsTampering(t *testing.T) {
	engine, _ := newTestEngine(t)

	blob, err := engine.Encrypt("https://example.com/secret")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	// 翻转任何一个 bit 都必须导致认证失败，绝不能解出错误的明文。
	for i := range blob {
		tampered := bytes.Clone(blob)
		tampered[i] ^= 0x01
		if _, err := engine.Decrypt(tampered); !errors.Is(err, ErrDecryption) {
			t.Fatalf("byte %d: tampered blob decrypted without error", i)
		}
	}
}

func TestDecryptShortBlob(t *testing.T) {
	engine, _ := newTestEngine(t)

	if _, err := engine.Decrypt([]byte{1, 2, 3}); !errors.Is(err, ErrDecryption) {
		t.Fatalf("short blob: got %v, want ErrDecryption", err)
	}
	if _, err := engine.Decrypt(nil); !errors.Is(err, ErrDecryption) {
		t.Fatalf("nil blob: got %v, want ErrDecryption", err)
	}
}

func TestKeyPersistsAcrossRestarts(t *testing.T) {
	engine, keyFile := newTestEngine(t)

	blob, err := engine.Encrypt("https://example.com/")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	// 第二次构造加载同一个密钥文件，必须能解开之前的密文。
	engine2, err := New(keyFile)
	if err != nil {
		t.Fatalf("New (reload): %v", err)
	}
	got, err := engine2.Decrypt(blob)
	if err != nil {
		t.Fatalf("Decrypt with reloaded key: %v", err)
	}
	if got != "https://example.com/" {
		t.Fatalf("Decrypt: got %q", got)
	}
}

func TestDecryptWithDifferentKeyFails(t *testing.T) {
	engineA, _ := newTestEngine(t)
	engineB, _ := newTestEngine(t)

	blob, err := engineA.Encrypt("https://example.com/")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := engineB.Decrypt(blob); !errors.Is(err, ErrDecryption) {
		t.Fatalf("wrong key: got %v, want ErrDecryption", err)
	}
}

func TestWrongLengthKeyFileIsFatal(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "encryption.key")
	short := base64.StdEncoding.EncodeToString([]byte("too short"))
	if err := os.WriteFile(keyFile, []byte(short), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := New(keyFile); !errors.Is(err, ErrKeyFile) {
		t.Fatalf("wrong length key: got %v, want ErrKeyFile", err)
	}
}

func TestGarbageKeyFileIsFatal(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "encryption.key")
	if err := os.WriteFile(keyFile, []byte("%%% not base64 %%%"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := New(keyFile); !errors.Is(err, ErrKeyFile) {
		t.Fatalf("garbage key file: got %v, want ErrKeyFile", err)
	}
}

func TestFingerprintDeterministicPerKey(t *testing.T) {
	engine, keyFile := newTestEngine(t)
	other, _ := newTestEngine(t)

	a := engine.Fingerprint("https://example.com/")
	b := engine.Fingerprint("https://example.com/")
	if a != b {
		t.Fatalf("fingerprint not deterministic: %q vs %q", a, b)
	}
	if engine.Fingerprint("https://example.com/other") == a {
		t.Fatal("different urls produced the same fingerprint")
	}

	// 指纹带密钥：换一把密钥，同一输入的指纹必须不同。
	if other.Fingerprint("https://example.com/") == a {
		t.Fatal("different keys produced the same fingerprint")
	}

	// 同一密钥文件重新加载后指纹保持稳定（索引要跨重启可用）。
	reloaded, err := New(keyFile)
	if err != nil {
		t.Fatalf("New (reload): %v", err)
	}
	if reloaded.Fingerprint("https://example.com/") != a {
		t.Fatal("fingerprint changed after key reload")
	}
}
