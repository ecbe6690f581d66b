package store

import (
	"context"
	"testing"

	"github.com/rushteam/ranklearn/core"
)

func TestMemoryStoreGetSet(t *testing.T) {
	ms := NewMemoryStore()
	defer ms.Close()
	ctx := context.Background()

	if _, err := ms.Get(ctx, "missing"); !core.IsStoreNotFound(err) {
		t.Errorf("missing key error = %v, want store NOT_FOUND", err)
	}

	if err := ms.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := ms.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Errorf("get = %q/%v, want v", got, err)
	}

	if err := ms.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := ms.Get(ctx, "k"); !core.IsStoreNotFound(err) {
		t.Errorf("deleted key error = %v, want store NOT_FOUND", err)
	}
}

func TestMemoryStoreBatch(t *testing.T) {
	ms := NewMemoryStore()
	defer ms.Close()
	ctx := context.Background()

	err := ms.BatchSet(ctx, map[string][]byte{"a": []byte("1"), "b": []byte("2")})
	if err != nil {
		t.Fatalf("batch set: %v", err)
	}
	got, err := ms.BatchGet(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("batch get: %v", err)
	}
	if len(got) != 2 || string(got["a"]) != "1" {
		t.Errorf("batch get = %v", got)
	}
}

func TestMemoryStoreHash(t *testing.T) {
	ms := NewMemoryStore()
	defer ms.Close()
	ctx := context.Background()

	if err := ms.HSet(ctx, "h", "f1", []byte("x")); err != nil {
		t.Fatalf("hset: %v", err)
	}
	if err := ms.HSet(ctx, "h", "f2", []byte("y")); err != nil {
		t.Fatalf("hset: %v", err)
	}

	got, err := ms.HGet(ctx, "h", "f1")
	if err != nil || string(got) != "x" {
		t.Errorf("hget = %q/%v", got, err)
	}
	all, err := ms.HGetAll(ctx, "h")
	if err != nil || len(all) != 2 {
		t.Errorf("hgetall = %v/%v", all, err)
	}
	if _, err := ms.HGet(ctx, "h", "missing"); !core.IsStoreNotFound(err) {
		t.Errorf("missing field error = %v, want store NOT_FOUND", err)
	}
}

func TestMemoryStoreCloseStopsCleanup(t *testing.T) {
	ms := NewMemoryStore()

	if err := ms.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case <-ms.done:
	default:
		t.Error("cleanup goroutine must be signalled to exit on Close")
	}

	// 重复 Close 不 panic
	if err := ms.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestWeightKey(t *testing.T) {
	if got := WeightKey("neural"); got != "ranklearn:weights:neural" {
		t.Errorf("WeightKey = %q", got)
	}
}

func TestWeightsRoundTrip(t *testing.T) {
	ms := NewMemoryStore()
	defer ms.Close()
	ws := NewWeights(ms)
	ctx := context.Background()

	if _, err := ws.GetWeights(ctx, "neural"); !core.IsStoreNotFound(err) {
		t.Errorf("missing weights error = %v, want store NOT_FOUND", err)
	}

	doc := []byte(`{"version":"2.0-hinge"}`)
	if err := ws.SaveWeights(ctx, "neural", doc, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := ws.GetWeights(ctx, "neural")
	if err != nil || string(got) != string(doc) {
		t.Errorf("get weights = %q/%v", got, err)
	}

	// 不同算法的文档互不干扰
	if _, err := ws.GetWeights(ctx, "linear"); !core.IsStoreNotFound(err) {
		t.Errorf("other algorithm must stay missing, got %v", err)
	}
}
