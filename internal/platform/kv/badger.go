package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerOptions 是打开 BadgerStore 需要的全部参数。
// CacheSizeMB / FlushInterval 只是运维旋钮：写入的持久化语义不依赖它们。
type BadgerOptions struct {
	Path          string
	CacheSizeMB   int
	FlushInterval time.Duration
}

// BadgerStore 是基于 Badger（嵌入式 LSM KV）的 Store 实现。
//
// 持久化约定：
// - 打开时关闭 Badger 的每次写 fsync（SyncWrites=false），
//   改为在 Put/PutIfAbsent 提交后显式 Sync 一次，成功返回即代表落盘
// - 后台再按 FlushInterval 周期性 Sync 一次，兜底非关键路径的写入
type BadgerStore struct {
	db   *badger.DB
	stop chan struct{}
	done chan struct{}
}

var errConflict = errors.New("kv: key already exists")

func OpenBadger(opts BadgerOptions) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(opts.Path).
		WithSyncWrites(false).
		WithBlockCacheSize(int64(opts.CacheSizeMB) << 20).
		WithLogger(&badgerSlog{l: slog.Default()})

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}

	s := &BadgerStore{
		db:   db,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.flushLoop(opts.FlushInterval)
	return s, nil
}

// flushLoop 周期性把 Badger 的内存状态刷到磁盘。
func (s *BadgerStore) flushLoop(interval time.Duration) {
	defer close(s.done)
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.db.Sync(); err != nil {
				slog.Error("badger background sync failed", "err", err)
			}
		case <-s.stop:
			return
		}
	}
}

func (s *BadgerStore) Put(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return &StorageError{Op: "put", Err: err}
	}
	// 提交后显式落盘，成功返回即 crash-safe。
	if err := s.db.Sync(); err != nil {
		return &StorageError{Op: "put sync", Err: err}
	}
	return nil
}

func (s *BadgerStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "get", Err: err}
	}
	return value, nil
}

func (s *BadgerStore) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return &StorageError{Op: "scan", Err: err}
			}
			if err := fn(item.KeyCopy(nil), value); err != nil {
				return err
			}
		}
		return nil
	})
	return err
}

func (s *BadgerStore) PutIfAbsent(ctx context.Context, entries ...Entry) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var conflict []byte
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, e := range entries {
			_, err := txn.Get(e.Key)
			if err == nil {
				conflict = bytes.Clone(e.Key)
				// 返回错误让整个事务回滚，一个都不写。
				return errConflict
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		for _, e := range entries {
			if err := txn.Set(e.Key, e.Value); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errConflict) {
		return conflict, nil
	}
	if errors.Is(err, badger.ErrConflict) {
		// 事务级并发冲突：另一个事务同时写了这些 key。
		// 对调用方来说等同于 key 已存在，报告第一个 key 即可。
		return bytes.Clone(entries[0].Key), nil
	}
	if err != nil {
		return nil, &StorageError{Op: "put-if-absent", Err: err}
	}
	if err := s.db.Sync(); err != nil {
		return nil, &StorageError{Op: "put-if-absent sync", Err: err}
	}
	return nil, nil
}

func (s *BadgerStore) Close() error {
	close(s.stop)
	<-s.done
	return s.db.Close()
}

// badgerSlog 把 Badger 自带的日志接到 slog 上，避免两套日志格式。
type badgerSlog struct {
	l *slog.Logger
}

func (b *badgerSlog) Errorf(format string, args ...interface{}) {
	b.l.Error("badger: " + fmt.Sprintf(format, args...))
}

func (b *badgerSlog) Warningf(format string, args ...interface{}) {
	b.l.Warn("badger: " + fmt.Sprintf(format, args...))
}

func (b *badgerSlog) Infof(format string, args ...interface{}) {
	b.l.Debug("badger: " + fmt.Sprintf(format, args...))
}

func (b *badgerSlog) Debugf(format string, args ...interface{}) {
	b.l.Debug("badger: " + fmt.Sprintf(format, args...))
}
