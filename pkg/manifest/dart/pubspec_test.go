package dart

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestPubspecParse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pubspec.yaml")
	content := `name: shop_app
dependencies:
  flutter:
    sdk: flutter
  shop_models:
    path: ../models
  http: ^1.2.0
dev_dependencies:
  flutter_test:
    sdk: flutter
  lints: ^3.0.0
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := Pubspec{}.Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if res.Identity != "shop_app" {
		t.Errorf("Identity = %q, want %q", res.Identity, "shop_app")
	}
	want := []string{"http", "lints", "shop_models"}
	if !slices.Equal(res.Dependencies, want) {
		t.Errorf("Dependencies = %v, want %v", res.Dependencies, want)
	}
}

func TestPubspecMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pubspec.yaml")
	if err := os.WriteFile(path, []byte("name: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := (Pubspec{}).Parse(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}
