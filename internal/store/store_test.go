package store

import (
	"path/filepath"
	"testing"
	"time"

	"stenotouch/internal/steno"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "strokes.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustParse(t *testing.T, notation string) steno.Stroke {
	t.Helper()
	st, err := steno.ParseStroke(notation)
	if err != nil {
		t.Fatalf("parse %q: %v", notation, err)
	}
	return st
}

func TestOpenCreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "strokes.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	// reopening applies no migrations twice
	s, err = Open(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	status, err := GetMigrationStatus(s.DB())
	if err != nil {
		t.Fatalf("GetMigrationStatus: %v", err)
	}
	if status.CurrentVersion != status.LatestVersion || len(status.Pending) != 0 {
		t.Errorf("unexpected migration status: %+v", status)
	}
	if len(status.Applied) != len(migrations) {
		t.Errorf("expected %d applied migrations, got %d", len(migrations), len(status.Applied))
	}
}

func TestCloseNilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close on nil db should not error: %v", err)
	}
}

func TestInsertAndRecent(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	for i, notation := range []string{"STKPW", "A*", "-FRPBLG"} {
		st := &Stroke{
			Time:        base.Add(time.Duration(i) * time.Second),
			Stroke:      mustParse(t, notation),
			Layout:      "classic",
			Fingerprint: "abc",
			Modality:    "keys",
		}
		id, err := s.Insert(st)
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		if id == 0 || st.ID != id {
			t.Errorf("expected ID to be set, got %d / %d", id, st.ID)
		}
	}

	recent, err := s.Recent(2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 strokes, got %d", len(recent))
	}
	if recent[0].Stroke.String() != "-FRPBLG" || recent[1].Stroke.String() != "A*" {
		t.Errorf("unexpected order: %v, %v", recent[0].Stroke, recent[1].Stroke)
	}
	if !recent[0].Time.Equal(base.Add(2 * time.Second)) {
		t.Errorf("time not preserved: %v", recent[0].Time)
	}
	if recent[0].Layout != "classic" || recent[0].Modality != "keys" || recent[0].Fingerprint != "abc" {
		t.Errorf("metadata not preserved: %+v", recent[0])
	}
}

func TestInsertBatchAndRange(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	batch := make([]Stroke, 10)
	for i := range batch {
		batch[i] = Stroke{
			Time:     base.Add(time.Duration(i) * time.Minute),
			Stroke:   steno.Of(steno.LeftS),
			Layout:   "joystick",
			Modality: "joystick",
		}
	}
	if err := s.InsertBatch(batch); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}
	if err := s.InsertBatch(nil); err != nil {
		t.Errorf("empty batch should be a no-op: %v", err)
	}

	got, err := s.Range(base.Add(2*time.Minute), base.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("Range failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 strokes in range, got %d", len(got))
	}
	if !got[0].Time.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("range should be oldest first, got %v", got[0].Time)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Strokes != 10 || !stats.First.Equal(base) || !stats.Last.Equal(base.Add(9*time.Minute)) {
		t.Errorf("unexpected stats: %+v", stats)
	}

	n, err := s.Prune(base.Add(4 * time.Minute))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 pruned, got %d", n)
	}
}

func TestKeyFrequency(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	for _, notation := range []string{"ST", "S", "-Z", "#S*"} {
		if _, err := s.Insert(&Stroke{Time: now, Stroke: mustParse(t, notation), Layout: "classic"}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	counts, err := s.KeyFrequency(now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("KeyFrequency failed: %v", err)
	}
	if len(counts) != steno.NumKeys {
		t.Fatalf("expected a count per key, got %d", len(counts))
	}
	want := map[steno.Key]int64{steno.LeftS: 3, steno.LeftT: 1, steno.RightZ: 1, steno.Number: 1, steno.Star: 1, steno.A: 0}
	for k, n := range want {
		if counts[k].Key != k || counts[k].Count != n {
			t.Errorf("%s: expected %d, got %+v", k, n, counts[k])
		}
	}

	counts, err = s.KeyFrequency(now.Add(time.Hour))
	if err != nil {
		t.Fatalf("KeyFrequency failed: %v", err)
	}
	if counts[steno.LeftS].Count != 0 {
		t.Errorf("expected no strokes after the window start, got %d", counts[steno.LeftS].Count)
	}
}

func TestTopStrokes(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	for _, notation := range []string{"S", "T", "S", "KW", "S", "T"} {
		if _, err := s.Insert(&Stroke{Time: now, Stroke: mustParse(t, notation)}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	top, err := s.TopStrokes(2)
	if err != nil {
		t.Fatalf("TopStrokes failed: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(top))
	}
	if top[0].Stroke.String() != "S" || top[0].Count != 3 || top[1].Stroke.String() != "T" || top[1].Count != 2 {
		t.Errorf("unexpected ranking: %+v", top)
	}
}

func TestRecordLayout(t *testing.T) {
	s := openTestStore(t)
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.RecordLayout("classic", "f00d", "builtin", first); err != nil {
		t.Fatalf("RecordLayout failed: %v", err)
	}
	if err := s.RecordLayout("classic", "f00d", "builtin", first.Add(time.Hour)); err != nil {
		t.Fatalf("RecordLayout again failed: %v", err)
	}

	r, err := s.GetLayout("f00d")
	if err != nil {
		t.Fatalf("GetLayout failed: %v", err)
	}
	if r == nil || r.Name != "classic" || !r.FirstSeen.Equal(first) {
		t.Errorf("unexpected record: %+v", r)
	}

	missing, err := s.GetLayout("beef")
	if err != nil || missing != nil {
		t.Errorf("expected nil for unknown fingerprint, got %+v, %v", missing, err)
	}
}

func TestRollbackMigration(t *testing.T) {
	s := openTestStore(t)

	if err := RollbackMigration(s.DB()); err != nil {
		t.Fatalf("RollbackMigration failed: %v", err)
	}
	status, err := GetMigrationStatus(s.DB())
	if err != nil {
		t.Fatalf("GetMigrationStatus: %v", err)
	}
	if status.CurrentVersion != len(migrations)-1 || len(status.Pending) != 1 {
		t.Errorf("unexpected status after rollback: %+v", status)
	}

	if err := MigrateDB(s.DB()); err != nil {
		t.Fatalf("re-migrate failed: %v", err)
	}
	if err := ValidateSchema(s.DB()); err != nil {
		t.Errorf("schema invalid after re-migration: %v", err)
	}
}
