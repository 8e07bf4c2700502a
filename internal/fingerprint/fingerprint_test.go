package fingerprint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestFileIDDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "lecture.wav", []byte("pcm-bytes"))

	first, err := FileID(path)
	if err != nil {
		t.Fatalf("FileID: %v", err)
	}
	second, err := FileID(path)
	if err != nil {
		t.Fatalf("FileID: %v", err)
	}
	if first != second {
		t.Fatalf("FileID not deterministic: %q vs %q", first, second)
	}
	if !strings.HasPrefix(first, "lecture-") {
		t.Fatalf("FileID %q missing filename stem prefix", first)
	}
	if got := len(first); got != len("lecture-")+digestLength {
		t.Fatalf("FileID %q has unexpected length %d", first, got)
	}
}

func TestFileIDVariesWithContent(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "take.wav", []byte("first take"))

	idA, err := FileID(a)
	if err != nil {
		t.Fatalf("FileID: %v", err)
	}

	if err := os.WriteFile(a, []byte("second take"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	idB, err := FileID(a)
	if err != nil {
		t.Fatalf("FileID: %v", err)
	}
	if idA == idB {
		t.Fatal("FileID unchanged after content change")
	}
}

func TestFileIDMissingFile(t *testing.T) {
	if _, err := FileID(filepath.Join(t.TempDir(), "nope.wav")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestStemSanitizes(t *testing.T) {
	cases := map[string]string{
		"Morning Standup (2024).m4a": "morning_standup_2024",
		"già-parlé.flac":             "gi_-parl",
		"...wav":                     "audio",
		"plain.wav":                  "plain",
	}
	for input, want := range cases {
		if got := Stem(input); got != want {
			t.Errorf("Stem(%q) = %q, want %q", input, got, want)
		}
	}
}
