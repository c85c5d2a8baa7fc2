package localindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/andrewaziz8/P2P-Image-Sharing-System/model"
)

func TestPutGetDelete(t *testing.T) {
	idx, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	id := model.ImageID{1, 2, 3}
	if err := idx.Put(id, Entry{Path: "/tmp/a.png", IsOwner: true}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := idx.Get(id)
	if err != nil || !ok {
		t.Fatalf("Get: %v ok=%v", err, ok)
	}
	if got.Path != "/tmp/a.png" {
		t.Errorf("unexpected entry: %+v", got)
	}
	if err := idx.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := idx.Get(id); ok {
		t.Error("expected entry removed")
	}
}

func TestRescanAddsAndDropsFiles(t *testing.T) {
	dataDir := t.TempDir()
	imageDir := t.TempDir()
	idx, err := Open(dataDir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	path := filepath.Join(imageDir, "one.png")
	if err := os.WriteFile(path, []byte("fake png bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	fp := func(p string) (model.ImageID, error) {
		var id model.ImageID
		copy(id[:], []byte(filepath.Base(p)))
		return id, nil
	}
	if err := Rescan(idx, imageDir, "alice", fp); err != nil {
		t.Fatalf("Rescan: %v", err)
	}
	all, err := idx.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("want 1 entry, got %d", len(all))
	}

	os.Remove(path)
	if err := Rescan(idx, imageDir, "alice", fp); err != nil {
		t.Fatalf("Rescan after removal: %v", err)
	}
	all, err = idx.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("want 0 entries after removal, got %d", len(all))
	}
}
