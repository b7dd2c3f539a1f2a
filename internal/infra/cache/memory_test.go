package cache

import (
	"context"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	data, err := store.Load(ctx, "missing")
	if err != nil || data != nil {
		t.Fatalf("ожидали nil без ошибки для отсутствующего ключа, получили %q, %v", data, err)
	}

	payload := []byte(`{"events":[]}`)
	if err := store.Save(ctx, "k", payload); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	payload[0] = 'X'
	data, _ = store.Load(ctx, "k")
	if string(data) != `{"events":[]}` {
		t.Fatalf("хранилище должно копировать данные, получили %s", data)
	}

	if err := store.Remove(ctx, "k"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if data, _ := store.Load(ctx, "k"); data != nil {
		t.Fatalf("ожидали удаление ключа")
	}
}
