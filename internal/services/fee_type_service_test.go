package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"feeledger/internal/cache"
	"feeledger/internal/core"
)

func TestFeeTypeService(t *testing.T) {
	repo := newTestRepo(t)
	c := cache.NewExpiryCache[[]core.FeeType](10, time.Minute)
	svc := NewFeeTypeService(repo, c)
	ctx := context.Background()

	types, err := svc.List(ctx)
	if err != nil || types == nil || len(types) != 0 {
		t.Fatalf("expected empty list, got %v %v", types, err)
	}
	if _, ok := c.Get(feeTypesCacheKey); !ok {
		t.Fatal("list should populate the cache")
	}

	created, err := svc.Create(ctx, core.FeeTypeInput{Name: " Tuition ", Description: "Term fees"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Name != "Tuition" {
		t.Errorf("name = %q", created.Name)
	}
	if _, ok := c.Get(feeTypesCacheKey); ok {
		t.Fatal("create should invalidate the cache")
	}

	types, err = svc.List(ctx)
	if err != nil || len(types) != 1 {
		t.Fatalf("list after create = %v, %v", types, err)
	}
	types[0].Name = "mutated"
	again, err := svc.List(ctx)
	if err != nil || again[0].Name != "Tuition" {
		t.Fatalf("cached list was mutated through a returned slice: %v", again)
	}

	_, err = svc.Create(ctx, core.FeeTypeInput{Name: "Tuition"})
	assertKind(t, err, core.KindConflict)
	assertMessage(t, err, "A fee type with this name already exists")

	_, err = svc.Create(ctx, core.FeeTypeInput{Name: "  "})
	assertMessage(t, err, "Missing required field: name")
}

func TestFeeTypeService_EmptyCatalogStaysEmptyArray(t *testing.T) {
	svc := NewFeeTypeService(newTestRepo(t), cache.NewExpiryCache[[]core.FeeType](10, time.Minute))
	ctx := context.Background()

	for i, label := range []string{"from database", "from cache"} {
		types, err := svc.List(ctx)
		if err != nil {
			t.Fatalf("list %d: %v", i, err)
		}
		body, err := json.Marshal(map[string]any{"fee_types": types})
		if err != nil {
			t.Fatal(err)
		}
		if string(body) != `{"fee_types":[]}` {
			t.Errorf("%s: body = %s", label, body)
		}
	}
}
