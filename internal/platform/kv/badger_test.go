package kv

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"
)

func openTestStore(t *testing.T, dir string) *BadgerStore {
	t.Helper()
	store, err := OpenBadger(BadgerOptions{
		Path:          dir,
		CacheSizeMB:   8,
		FlushInterval: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	return store
}

func TestPutGet(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer store.Close()
	ctx := context.Background()

	if err := store.Put(ctx, []byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := store.Get(ctx, []byte("k1"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v1" {
		t.Fatalf("Get: got %q, want %q", got, "v1")
	}

	// Put 是插入或覆盖
	if err := store.Put(ctx, []byte("k1"), []byte("v2")); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, err = store.Get(ctx, []byte("k1"))
	if err != nil {
		t.Fatalf("Get after overwrite: %v", err)
	}
	if string(got) != "v2" {
		t.Fatalf("Get after overwrite: got %q, want %q", got, "v2")
	}
}

func TestGetMissing(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer store.Close()

	_, err := store.Get(context.Background(), []byte("nope"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing: got %v, want ErrNotFound", err)
	}
}

func TestScanPrefix(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer store.Close()
	ctx := context.Background()

	pairs := map[string]string{
		"c:aaa": "1",
		"c:bbb": "2",
		"u:xxx": "3",
	}
	for k, v := range pairs {
		if err := store.Put(ctx, []byte(k), []byte(v)); err != nil {
			t.Fatalf("Put %s: %v", k, err)
		}
	}

	var keys []string
	err := store.Scan(ctx, []byte("c:"), func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "c:aaa" || keys[1] != "c:bbb" {
		t.Fatalf("Scan c:: got %v, want [c:aaa c:bbb]", keys)
	}

	// 空前缀遍历全部
	n := 0
	if err := store.Scan(ctx, nil, func(_, _ []byte) error { n++; return nil }); err != nil {
		t.Fatalf("Scan all: %v", err)
	}
	if n != len(pairs) {
		t.Fatalf("Scan all: got %d entries, want %d", n, len(pairs))
	}
}

func TestScanCallbackError(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer store.Close()
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		if err := store.Put(ctx, []byte(k), []byte("v")); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	sentinel := errors.New("stop here")
	n := 0
	err := store.Scan(ctx, nil, func(_, _ []byte) error {
		n++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Scan: got %v, want sentinel", err)
	}
	if n != 1 {
		t.Fatalf("Scan: callback ran %d times after error, want 1", n)
	}
}

func TestPutIfAbsent(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer store.Close()
	ctx := context.Background()

	conflict, err := store.PutIfAbsent(ctx,
		Entry{Key: []byte("c:abc"), Value: []byte("cipher")},
		Entry{Key: []byte("u:fp1"), Value: []byte("abc")},
	)
	if err != nil {
		t.Fatalf("PutIfAbsent: %v", err)
	}
	if conflict != nil {
		t.Fatalf("PutIfAbsent: unexpected conflict %q", conflict)
	}

	// 任意一个 key 已存在则整批放弃，一个都不写。
	conflict, err = store.PutIfAbsent(ctx,
		Entry{Key: []byte("c:new"), Value: []byte("cipher2")},
		Entry{Key: []byte("u:fp1"), Value: []byte("new")},
	)
	if err != nil {
		t.Fatalf("PutIfAbsent conflict: %v", err)
	}
	if string(conflict) != "u:fp1" {
		t.Fatalf("PutIfAbsent conflict: got %q, want u:fp1", conflict)
	}
	if _, err := store.Get(ctx, []byte("c:new")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("c:new should not have been written, Get returned %v", err)
	}
	// 原值未被覆盖
	got, err := store.Get(ctx, []byte("u:fp1"))
	if err != nil {
		t.Fatalf("Get u:fp1: %v", err)
	}
	if string(got) != "abc" {
		t.Fatalf("u:fp1: got %q, want %q", got, "abc")
	}
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store := openTestStore(t, dir)
	if err := store.Put(ctx, []byte("durable"), []byte("yes")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	store = openTestStore(t, dir)
	defer store.Close()
	got, err := store.Get(ctx, []byte("durable"))
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(got) != "yes" {
		t.Fatalf("Get after reopen: got %q, want %q", got, "yes")
	}
}

func TestContextCancelled(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.Put(ctx, []byte("k"), []byte("v")); !errors.Is(err, context.Canceled) {
		t.Fatalf("Put with cancelled ctx: got %v, want context.Canceled", err)
	}
}
