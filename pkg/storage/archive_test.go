package storage

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/mnohosten/pagecache/pkg/compression"
)

func TestArchiveRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.dat")
	a, err := NewPageArchive(path, compression.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to open archive: %v", err)
	}
	defer a.Close()

	image := make([]byte, PageSize)
	copy(image, []byte("final image of page seven"))

	if err := a.Archive(7, image); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	got, ok, err := a.Retrieve(7)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if !ok {
		t.Fatal("expected page 7 to be archived")
	}
	if !bytes.Equal(got, image) {
		t.Error("retrieved image differs from the archived one")
	}

	if _, ok, err := a.Retrieve(8); err != nil || ok {
		t.Errorf("Retrieve(8) = ok=%v err=%v, want a clean miss", ok, err)
	}
}

func TestArchiveLatestRecordWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.dat")
	a, err := NewPageArchive(path, compression.SnappyConfig())
	if err != nil {
		t.Fatalf("Failed to open archive: %v", err)
	}
	defer a.Close()

	first := make([]byte, PageSize)
	copy(first, []byte("first life"))
	second := make([]byte, PageSize)
	copy(second, []byte("second life"))

	if err := a.Archive(3, first); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if err := a.Archive(3, second); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	got, ok, err := a.Retrieve(3)
	if err != nil || !ok {
		t.Fatalf("Retrieve failed: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, second) {
		t.Error("expected the latest archived image")
	}
	if a.Len() != 1 {
		t.Errorf("expected 1 distinct archived page, got %d", a.Len())
	}
}

func TestArchiveIndexSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.dat")

	image := make([]byte, PageSize)
	copy(image, []byte("persistent archive entry"))

	a, err := NewPageArchive(path, compression.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to open archive: %v", err)
	}
	if err := a.Archive(12, image); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	a2, err := NewPageArchive(path, compression.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to reopen archive: %v", err)
	}
	defer a2.Close()

	got, ok, err := a2.Retrieve(12)
	if err != nil || !ok {
		t.Fatalf("Retrieve after reopen failed: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, image) {
		t.Error("image did not survive reopen")
	}
}
