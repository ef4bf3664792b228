package cmd

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestCollectImagesNaturalOrder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"img10.jpg", "img2.JPG", "img1.png", "notes.txt", ".hidden/img3.jpg", "day2/img1.webp"} {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := collectImages(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got []string
	for _, f := range files {
		rel, _ := filepath.Rel(dir, f)
		got = append(got, filepath.ToSlash(rel))
	}
	want := []string{"day2/img1.webp", "img1.png", "img2.JPG", "img10.jpg"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("files = %v, want %v", got, want)
	}
}

func TestStoredImagePath(t *testing.T) {
	upload := t.TempDir()
	outside := t.TempDir()

	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "inside upload dir", path: filepath.Join(upload, "events", "a.jpg"), want: "events/a.jpg"},
		{name: "outside upload dir", path: filepath.Join(outside, "b.jpg"), want: filepath.Join(outside, "b.jpg")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := storedImagePath(upload, tt.path); got != tt.want {
				t.Errorf("storedImagePath = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"3", "14"})
	if err != nil || !reflect.DeepEqual(ids, []uint{3, 14}) {
		t.Fatalf("parseIDs = %v, %v", ids, err)
	}
	for _, bad := range []string{"0", "-1", "x"} {
		if _, err := parseIDs([]string{bad}); err == nil {
			t.Errorf("parseIDs(%q) should fail", bad)
		}
	}
}

func TestTagTargets(t *testing.T) {
	tests := []struct {
		name     string
		ids      []uint
		eventIDs []uint
		want     []uint
	}{
		{name: "explicit only", ids: []uint{4, 2, 4}, want: []uint{4, 2}},
		{name: "overlapping event", ids: []uint{3, 1}, eventIDs: []uint{1, 2, 3}, want: []uint{3, 1, 2}},
		{name: "nothing", want: []uint{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tagTargets(tt.ids, tt.eventIDs); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("tagTargets = %v, want %v", got, tt.want)
			}
		})
	}
}
