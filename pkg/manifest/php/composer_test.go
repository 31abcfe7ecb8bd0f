package php

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestComposerJSONParse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "composer.json")
	content := `{
  "name": "Shop/Billing",
  "require": {"php": ">=8.1", "ext-json": "*", "shop/common": "^1.0", "monolog/monolog": "^3"},
  "require-dev": {"phpunit/phpunit": "^10", "composer-plugin-api": "^2"}
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := ComposerJSON{}.Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if res.Identity != "shop/billing" {
		t.Errorf("Identity = %q, want %q", res.Identity, "shop/billing")
	}
	want := []string{"monolog/monolog", "phpunit/phpunit", "shop/common"}
	if !slices.Equal(res.Dependencies, want) {
		t.Errorf("Dependencies = %v, want %v", res.Dependencies, want)
	}
}
