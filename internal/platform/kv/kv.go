package kv

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound 表示 key 不存在。
//
// 设计原因：
// - “不存在”是正常业务分支（例如短码未注册），必须能和真正的 I/O 故障区分开
// - 上层用 errors.Is(err, kv.ErrNotFound) 判断，避免解析错误字符串
var ErrNotFound = errors.New("kv: key not found")

// StorageError 包装底层存储引擎的 I/O / 损坏错误。
// 存储层不做重试，重试策略交给调用方。
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("kv: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Entry 是一条键值对，用于批量写入。
type Entry struct {
	Key   []byte
	Value []byte
}

// Store 是持久化键值存储的抽象。
//
// 约定：
// - Put/PutIfAbsent 返回 nil 即代表数据已经落盘（调用方可以把成功当作 crash-safe）
// - 单 key 的读写是线性一致的：Put 成功返回后，任何后续 Get 都能看到新值
// - 跨 key 没有顺序保证
type Store interface {
	// Put 插入或覆盖一个 key。
	Put(ctx context.Context, key, value []byte) error

	// Get 精确查找，key 不存在时返回 ErrNotFound。
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Scan 遍历所有以 prefix 开头的条目，对每条调用 fn；
	// fn 返回非 nil 错误时中断遍历并原样返回该错误。
	// prefix 为空时遍历整个存储。遍历顺序未定义，但单次 Scan 内是确定的。
	Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error

	// PutIfAbsent 在一个原子写入里插入所有 entries，前提是所有 key 都不存在。
	// 任意一个 key 已存在时整批放弃，返回第一个冲突的 key（conflict != nil），
	// 此时存储内容不变。conflict 为 nil 且 err 为 nil 表示全部写入成功并已落盘。
	PutIfAbsent(ctx context.Context, entries ...Entry) (conflict []byte, err error)

	Close() error
}
