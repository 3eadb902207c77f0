package sink

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseGCSPath(t *testing.T) {
	testCases := []struct {
		path           string
		bucket, object string
		ok             bool
	}{
		{"gs://renders/scene.ppm", "renders", "scene.ppm", true},
		{"gs://renders/a/b/scene.ppm", "renders", "a/b/scene.ppm", true},
		{"gs://renders", "", "", false},
		{"gs://renders/", "", "", false},
		{"gs:///scene.ppm", "", "", false},
		{"scene.ppm", "", "", false},
		{"/tmp/gs://x/y", "", "", false},
	}

	for _, tc := range testCases {
		bucket, object, ok := ParseGCSPath(tc.path)
		if diff := cmp.Diff([]string{bucket, object}, []string{tc.bucket, tc.object}); diff != "" || ok != tc.ok {
			t.Errorf("ParseGCSPath(%q) ok=%v, want %v; diff (-got +want)\n%s", tc.path, ok, tc.ok, diff)
		}
	}
}

func TestCreateLocal(t *testing.T) {
	name := filepath.Join(t.TempDir(), "out.ppm")

	w, err := Create(context.Background(), name, "image/x-portable-pixmap")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := w.Write([]byte("P3\n")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	got, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if diff := cmp.Diff(string(got), "P3\n"); diff != "" {
		t.Fatalf("Bad file contents; diff (-got +want)\n%s", diff)
	}
}

func TestCreateErrors(t *testing.T) {
	if _, err := Create(context.Background(), filepath.Join(t.TempDir(), "missing", "out.ppm"), ""); err == nil {
		t.Errorf("Creating a file in a missing directory succeeded")
	}
	if _, err := Create(context.Background(), "gs://bucket-only", ""); err == nil {
		t.Errorf("Creating a malformed GCS path succeeded")
	}
}
