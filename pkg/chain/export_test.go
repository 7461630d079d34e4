package chain

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := NewMemoryStore(2)
	_ = src.InsertBatch(ctx, NewContext("a", "b"), []string{"c", "c", "d"})
	_ = src.Insert(ctx, NewContext("b", "c"), "d")

	var buf strings.Builder
	if err := src.Export(&buf); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}

	dst := NewMemoryStore(2)
	if err := dst.Import(strings.NewReader(buf.String())); err != nil {
		t.Fatalf("Import() failed: %v", err)
	}
	if !reflect.DeepEqual(snapshotOf(t, src), snapshotOf(t, dst)) {
		t.Error("imported store does not match exported store")
	}
}

func TestImportMergesCounts(t *testing.T) {
	ctx := context.Background()
	src := NewMemoryStore(2)
	_ = src.Insert(ctx, NewContext("a", "b"), "c")

	var buf strings.Builder
	if err := src.Export(&buf); err != nil {
		t.Fatal(err)
	}

	dst := NewMemoryStore(2)
	_ = dst.InsertBatch(ctx, NewContext("a", "b"), []string{"c", "c"})
	if err := dst.Import(strings.NewReader(buf.String())); err != nil {
		t.Fatalf("Import() failed: %v", err)
	}

	if w, _ := dst.Weight(ctx, NewContext("a", "b"), "c"); w != 3 {
		t.Errorf("expected merged weight 3, got %d", w)
	}
}

func TestImportOrderMismatch(t *testing.T) {
	src := NewMemoryStore(3)
	var buf strings.Builder
	if err := src.Export(&buf); err != nil {
		t.Fatal(err)
	}

	dst := NewMemoryStore(2)
	if err := dst.Import(strings.NewReader(buf.String())); !errors.Is(err, ErrOrderMismatch) {
		t.Errorf("Import() of mismatched order: got %v, want ErrOrderMismatch", err)
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	ctx := context.Background()
	src := NewMemoryStore(2)
	_ = src.InsertBatch(ctx, NewContext("one", "fish"), []string{"two", "red"})

	path := filepath.Join(t.TempDir(), "snapshot.json")
	if err := src.SaveFile(path); err != nil {
		t.Fatalf("SaveFile() failed: %v", err)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if loaded.Order() != 2 {
		t.Errorf("loaded order = %d, want 2", loaded.Order())
	}
	if !reflect.DeepEqual(snapshotOf(t, src), snapshotOf(t, loaded)) {
		t.Error("loaded store does not match saved store")
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected an error loading a missing snapshot")
	}
}
