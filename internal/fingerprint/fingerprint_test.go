package fingerprint_test

import (
	"os"
	"path/filepath"
	"testing"

	"dailete/internal/fingerprint"
)

func write(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestFileKnownDigest(t *testing.T) {
	path := write(t, t.TempDir(), "abc", []byte("abc"))
	got, err := fingerprint.File(path)
	if err != nil {
		t.Fatalf("File returned error: %v", err)
	}
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Fatalf("unexpected digest %s", got)
	}
}

func TestEqual(t *testing.T) {
	dir := t.TempDir()
	a := write(t, dir, "a.local", []byte("episode body"))
	b := write(t, dir, "a.remote", []byte("episode body"))
	c := write(t, dir, "c.remote", []byte("episode bodY"))
	d := write(t, dir, "d.remote", []byte("episode body with ad"))

	tests := []struct {
		name string
		x, y string
		want bool
	}{
		{"identical", a, b, true},
		{"same size differs", a, c, false},
		{"different size", a, d, false},
	}
	for _, tt := range tests {
		got, err := fingerprint.Equal(tt.x, tt.y)
		if err != nil {
			t.Fatalf("%s: Equal returned error: %v", tt.name, err)
		}
		if got != tt.want {
			t.Fatalf("%s: Equal = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestEqualMissingFile(t *testing.T) {
	dir := t.TempDir()
	a := write(t, dir, "a", []byte("x"))
	if _, err := fingerprint.Equal(a, filepath.Join(dir, "missing")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
