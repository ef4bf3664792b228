package media

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStorageSaveAndDelete(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), map[AssetType]string{AssetTypeSelfie: "selfies"})
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	rel, err := store.Save(AssetTypeSelfie, "42", ".JPG", strings.NewReader("selfie"))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !strings.HasPrefix(rel, "selfies/42/") || !strings.HasSuffix(rel, ".jpg") {
		t.Errorf("unexpected relative path %s", rel)
	}

	full, err := store.GetFullPath(rel)
	if err != nil {
		t.Fatalf("GetFullPath failed: %v", err)
	}
	if data, err := os.ReadFile(full); err != nil || string(data) != "selfie" {
		t.Fatalf("stored content mismatch: %q, %v", data, err)
	}

	if err := store.Delete(rel); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := os.Stat(full); !os.IsNotExist(err) {
		t.Errorf("file still exists after delete")
	}
	if err := store.Delete(rel); err != nil {
		t.Errorf("second delete should succeed, got %v", err)
	}
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	tests := []string{
		"../outside.jpg",
		"selfies/../../outside.jpg",
		filepath.Join(string(filepath.Separator), "etc", "passwd"),
	}
	for _, rel := range tests {
		if _, err := store.GetFullPath(rel); err == nil {
			t.Errorf("GetFullPath(%q) should fail", rel)
		}
	}

	if _, err := store.Save(AssetTypeSelfie, "../..", "x.jpg", strings.NewReader("x")); err == nil {
		t.Error("Save with an escaping directory hint should fail")
	}
}
