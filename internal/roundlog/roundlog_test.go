package roundlog

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/djkazic/dodmine/internal/bitwork"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func TestAddAndGet(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "rounds.db"), testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	target, err := bitwork.New(6, 0xa)
	if err != nil {
		t.Fatalf("bitwork.New: %v", err)
	}
	outcome := Outcome{Height: 100, ParentHash: [32]byte{1, 2, 3}, Difficulty: target, Won: true}
	if err := store.Add(outcome); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, ok, err := store.Get(100)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected outcome to be found")
	}
	if got.ParentHash != outcome.ParentHash || !got.Won {
		t.Errorf("got %+v, want %+v", got, outcome)
	}
	if store.Count() != 1 {
		t.Errorf("count = %d, want 1", store.Count())
	}
}

func TestTipTracksHighestHeight(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "rounds.db"), testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if _, ok, _ := store.Tip(); ok {
		t.Error("empty store should not have a tip")
	}

	_ = store.Add(Outcome{Height: 10})
	_ = store.Add(Outcome{Height: 30})
	_ = store.Add(Outcome{Height: 20})

	tip, ok, err := store.Tip()
	if err != nil {
		t.Fatalf("Tip: %v", err)
	}
	if !ok || tip != 30 {
		t.Errorf("tip = %d (found=%v), want 30", tip, ok)
	}
}

func TestPersistenceAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "rounds.db")

	{
		store, err := Open(dbPath, testLogger())
		if err != nil {
			t.Fatalf("Open (phase 1): %v", err)
		}
		for h := uint64(1); h <= 3; h++ {
			if err := store.Add(Outcome{Height: h, Won: h == 3}); err != nil {
				t.Fatalf("Add %d: %v", h, err)
			}
		}
		if err := store.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	{
		store, err := Open(dbPath, testLogger())
		if err != nil {
			t.Fatalf("Open (phase 2): %v", err)
		}
		defer store.Close()

		if store.Count() != 3 {
			t.Errorf("count after reopen = %d, want 3", store.Count())
		}
		got, ok, err := store.Get(3)
		if err != nil || !ok || !got.Won {
			t.Errorf("Get(3) after reopen = %+v, ok=%v, err=%v", got, ok, err)
		}
	}

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file does not exist")
	}
}
