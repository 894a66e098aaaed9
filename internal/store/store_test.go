package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"artifacts", "builds"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.verifyPragma(ctx, "journal_mode", "wal"); err != nil {
		t.Error(err)
	}
	if err := s.verifyPragma(ctx, "user_version", "1"); err != nil {
		t.Error(err)
	}
}

func TestPutArtifact_FirstWriterWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	got, won, err := s.PutArtifact(ctx, "k1", []byte("first"), "build-a")
	if err != nil {
		t.Fatalf("PutArtifact() failed: %v", err)
	}
	if !won || string(got) != "first" {
		t.Fatalf("first write: got (%q, %v), want (\"first\", true)", got, won)
	}

	got, won, err = s.PutArtifact(ctx, "k1", []byte("second"), "build-b")
	if err != nil {
		t.Fatalf("PutArtifact() failed: %v", err)
	}
	if won {
		t.Error("second writer must not win")
	}
	if string(got) != "first" {
		t.Errorf("loser must read back the winner's bytes, got %q", got)
	}

	data, ok, err := s.ReadArtifact(ctx, "k1")
	if err != nil || !ok {
		t.Fatalf("ReadArtifact() = (%v, %v)", ok, err)
	}
	if string(data) != "first" {
		t.Errorf("stored data = %q, want \"first\"", data)
	}
}

func TestPutArtifact_ConcurrentWritersConverge(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	const writers = 8
	results := make([]string, writers)
	wins := make([]bool, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, won, err := s.PutArtifact(ctx, "shared", []byte{byte('a' + i)}, "w")
			if err != nil {
				t.Errorf("writer %d: %v", i, err)
				return
			}
			results[i] = string(data)
			wins[i] = won
		}()
	}
	wg.Wait()

	winners := 0
	for i := range results {
		if results[i] != results[0] {
			t.Errorf("writer %d observed %q, writer 0 observed %q", i, results[i], results[0])
		}
		if wins[i] {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("exactly one writer must win, got %d", winners)
	}
}

func TestReadArtifact_Missing(t *testing.T) {
	s := createTestStore(t)

	data, ok, err := s.ReadArtifact(context.Background(), "absent")
	if err != nil {
		t.Fatalf("ReadArtifact() failed: %v", err)
	}
	if ok || data != nil {
		t.Errorf("ReadArtifact(absent) = (%q, %v), want (nil, false)", data, ok)
	}
}

func TestArtifactStatsAndList(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, kv := range [][2]string{{"b", "22"}, {"a", "1"}, {"c", "333"}} {
		if _, _, err := s.PutArtifact(ctx, kv[0], []byte(kv[1]), "w"); err != nil {
			t.Fatalf("PutArtifact(%s) failed: %v", kv[0], err)
		}
	}

	count, size, err := s.ArtifactStats(ctx)
	if err != nil {
		t.Fatalf("ArtifactStats() failed: %v", err)
	}
	if count != 3 || size != 6 {
		t.Errorf("ArtifactStats() = (%d, %d), want (3, 6)", count, size)
	}

	list, err := s.ListArtifacts(ctx, 10)
	if err != nil {
		t.Fatalf("ListArtifacts() failed: %v", err)
	}
	var keys []string
	for _, a := range list {
		keys = append(keys, a.Key)
	}
	want := []string{"b", "a", "c"}
	if len(keys) != len(want) {
		t.Fatalf("ListArtifacts() keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("ListArtifacts() keys = %v, want insertion order %v", keys, want)
			break
		}
	}
	if list[0].Seq >= list[1].Seq || list[1].Seq >= list[2].Seq {
		t.Errorf("seq must increase: %d, %d, %d", list[0].Seq, list[1].Seq, list[2].Seq)
	}
}
