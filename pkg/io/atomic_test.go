package io

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	in := map[string]int{"a": 1}
	if err := WriteJSON(path, in); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	var out map[string]int
	found, err := ReadJSON(path, &out)
	if err != nil || !found {
		t.Fatalf("ReadJSON() = %v, %v", found, err)
	}
	if out["a"] != 1 {
		t.Errorf("out = %v, want a=1", out)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestReadJSONMissing(t *testing.T) {
	var v map[string]any
	found, err := ReadJSON(filepath.Join(t.TempDir(), "nope.json"), &v)
	if found || err != nil {
		t.Errorf("ReadJSON() = %v, %v; want false, nil", found, err)
	}
}

func TestReadJSONCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	var v map[string]any
	found, err := ReadJSON(path, &v)
	if !found || err == nil {
		t.Errorf("ReadJSON() = %v, %v; want true, error", found, err)
	}
}

func TestWriteFileReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	if err := WriteFile(path, []byte("one"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := WriteFile(path, []byte("two"), 0o600); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "two" {
		t.Errorf("content = %q, want %q", data, "two")
	}
	if !Exists(path) || Exists(filepath.Dir(path)) {
		t.Error("Exists() mismatch")
	}
}
