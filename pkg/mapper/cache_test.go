package mapper

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/trialworks/criteria-engine/pkg/apperrors"
	"github.com/trialworks/criteria-engine/pkg/models"
)

func sampleEntry() *CachedMapping {
	return &CachedMapping{
		Mapping: &models.MimicMapping{
			Table:        "mimiciv_hosp.labevents",
			Columns:      []string{"subject_id", "itemid", "valuenum"},
			SQLCondition: "valuenum > 2",
			ItemIDs:      []int{50813},
		},
		Confidence: 0.9,
		Reasoning:  "lactate is itemid 50813 in labevents",
	}
}

// runCacheContract exercises the behavior every Cache backend must share.
func runCacheContract(t *testing.T, cache Cache) {
	t.Helper()
	ctx := context.Background()

	if _, err := cache.Get(ctx, "missing"); !errors.Is(err, apperrors.ErrCacheMiss) {
		t.Fatalf("Get(missing) = %v, want ErrCacheMiss", err)
	}

	key := "serum lactate > 2 mmol/L"
	if err := cache.Set(ctx, key, sampleEntry()); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := cache.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Mapping.Table != "mimiciv_hosp.labevents" {
		t.Errorf("table = %q", got.Mapping.Table)
	}
	if len(got.Mapping.ItemIDs) != 1 || got.Mapping.ItemIDs[0] != 50813 {
		t.Errorf("itemids = %v", got.Mapping.ItemIDs)
	}
	if got.Confidence != 0.9 {
		t.Errorf("confidence = %v", got.Confidence)
	}
	if got.Validated {
		t.Error("entry should start unvalidated")
	}

	// Keys are case-sensitive, exactly as authored.
	if _, err := cache.Get(ctx, "Serum lactate > 2 mmol/L"); !errors.Is(err, apperrors.ErrCacheMiss) {
		t.Error("cache keys must be case-sensitive")
	}

	if err := cache.MarkValidated(ctx, key); err != nil {
		t.Fatalf("MarkValidated: %v", err)
	}
	got, err = cache.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Validated {
		t.Error("MarkValidated did not stick")
	}

	// Overwriting resets the validated flag with the new entry's value.
	if err := cache.Set(ctx, key, sampleEntry()); err != nil {
		t.Fatal(err)
	}
	got, err = cache.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if got.Validated {
		t.Error("overwrite should have reset the validated flag")
	}

	// MarkValidated on an unknown key is a no-op, not an error.
	if err := cache.MarkValidated(ctx, "never stored"); err != nil {
		t.Errorf("MarkValidated(unknown) = %v", err)
	}
}

func TestMemoryCache(t *testing.T) {
	cache := NewMemoryCache()
	defer cache.Close()
	runCacheContract(t, cache)
}

func TestSQLiteCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.db")
	cache, err := NewSQLiteCache(path)
	if err != nil {
		t.Fatalf("NewSQLiteCache: %v", err)
	}
	defer cache.Close()
	runCacheContract(t, cache)
}

func TestSQLiteCache_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.db")
	ctx := context.Background()

	cache, err := NewSQLiteCache(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cache.Set(ctx, "persisted criterion", sampleEntry()); err != nil {
		t.Fatal(err)
	}
	if err := cache.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewSQLiteCache(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "persisted criterion")
	if err != nil {
		t.Fatalf("entry lost across reopen: %v", err)
	}
	if got.Mapping.SQLCondition != "valuenum > 2" {
		t.Errorf("sql_condition = %q", got.Mapping.SQLCondition)
	}
}

func TestMemoryCache_GetReturnsCopy(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	if err := cache.Set(ctx, "k", sampleEntry()); err != nil {
		t.Fatal(err)
	}
	first, _ := cache.Get(ctx, "k")
	first.Confidence = 0.1

	second, _ := cache.Get(ctx, "k")
	if second.Confidence != 0.9 {
		t.Error("mutating a returned entry leaked into the cache")
	}
}
