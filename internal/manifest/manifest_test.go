package manifest

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileReturnsEmpty(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "manifest.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.Roots) != 0 {
		t.Fatalf("expected empty roots, got %d", len(m.Roots))
	}
}

func TestSaveLoad_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	m := New()
	m.SetRootState("/srv/repo", RootState{
		Path:         "/srv/repo",
		LastFullSync: time.Now().UTC().Truncate(time.Second),
		FileCount:    42,
	})
	m.UpdateLastBuild()

	if err := m.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	state, ok := loaded.GetRootState("/srv/repo")
	if !ok {
		t.Fatal("expected root state to round-trip")
	}
	if state.FileCount != 42 {
		t.Fatalf("FileCount = %d, want 42", state.FileCount)
	}
	if loaded.LastBuild.IsZero() {
		t.Fatal("expected LastBuild to round-trip")
	}
}

func TestNeedsFullBuild(t *testing.T) {
	m := New()
	if !m.NeedsFullBuild("/new/root") {
		t.Fatal("unknown root should need a full build")
	}

	m.SetRootState("/done/root", RootState{LastFullSync: time.Now().UTC()})
	if m.NeedsFullBuild("/done/root") {
		t.Fatal("root with a successful last sync should not need a full build")
	}

	m.SetRootState("/failed/root", RootState{LastFullSync: time.Now().UTC(), Error: "boom"})
	if !m.NeedsFullBuild("/failed/root") {
		t.Fatal("root with a recorded error should need a full build")
	}
}

func TestRemoveStaleRoots(t *testing.T) {
	m := New()
	m.SetRootState("/a", RootState{Path: "/a"})
	m.SetRootState("/b", RootState{Path: "/b"})

	removed := m.RemoveStaleRoots([]string{"/a"})
	if len(removed) != 1 || removed[0] != "/b" {
		t.Fatalf("removed = %v, want [/b]", removed)
	}
	if _, ok := m.GetRootState("/b"); ok {
		t.Fatal("/b should have been removed")
	}
	if _, ok := m.GetRootState("/a"); !ok {
		t.Fatal("/a should still be present")
	}
}
