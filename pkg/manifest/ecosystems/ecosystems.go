// Package ecosystems assembles the built-in manifest parsers.
package ecosystems

import (
	"github.com/matzehuels/stackscan/pkg/manifest"
	"github.com/matzehuels/stackscan/pkg/manifest/dart"
	"github.com/matzehuels/stackscan/pkg/manifest/golang"
	"github.com/matzehuels/stackscan/pkg/manifest/java"
	"github.com/matzehuels/stackscan/pkg/manifest/javascript"
	"github.com/matzehuels/stackscan/pkg/manifest/php"
	"github.com/matzehuels/stackscan/pkg/manifest/python"
	"github.com/matzehuels/stackscan/pkg/manifest/rust"
)

// Default returns every built-in parser in priority order. When a resource
// declares identities in several ecosystems, the earliest parser's identity
// becomes the primary one.
func Default() []manifest.Parser {
	return []manifest.Parser{
		golang.GoMod{},
		javascript.PackageJSON{},
		rust.CargoToml{},
		python.Pyproject{},
		python.Requirements{},
		java.POM{},
		php.ComposerJSON{},
		dart.Pubspec{},
	}
}

// Names returns the distinct ecosystem identifiers of the default parsers.
func Names() []string {
	var names []string
	seen := make(map[string]bool)
	for _, p := range Default() {
		if !seen[p.Ecosystem()] {
			seen[p.Ecosystem()] = true
			names = append(names, p.Ecosystem())
		}
	}
	return names
}
