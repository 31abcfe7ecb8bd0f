package javascript

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestPackageJSONParse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "package.json")
	content := `{
  "name": "@shop/web",
  "version": "1.0.0",
  "dependencies": {"react": "^18.0.0", "@shop/ui": "workspace:*"},
  "devDependencies": {"typescript": "^5.0.0"},
  "peerDependencies": {"react": "^18.0.0"},
  "optionalDependencies": {"fsevents": "^2.3.0"}
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := PackageJSON{}.Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if res.Identity != "@shop/web" {
		t.Errorf("Identity = %q, want %q", res.Identity, "@shop/web")
	}
	want := []string{"@shop/ui", "fsevents", "react", "typescript"}
	if !slices.Equal(res.Dependencies, want) {
		t.Errorf("Dependencies = %v, want %v", res.Dependencies, want)
	}
}

func TestPackageJSONMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "package.json")
	if err := os.WriteFile(path, []byte(`{"name": `), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := (PackageJSON{}).Parse(path); err == nil {
		t.Error("expected error for truncated JSON")
	}
}
