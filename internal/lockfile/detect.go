package lockfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/fbkclanna/lockscan/internal/apperr"
	"github.com/fbkclanna/lockscan/internal/yarnclassic"
)

// Kind is a recognised file format.
type Kind string

const (
	KindGoSum           Kind = "go.sum"
	KindGoMod           Kind = "go.mod"
	KindGoWork          Kind = "go.work"
	KindModulesTxt      Kind = "modules.txt"
	KindRequirements    Kind = "requirements"
	KindYarnLock        Kind = "yarn.lock"
	KindYarnClassicLock Kind = "yarn.lock/v1"
	KindPackageJSON     Kind = "package.json"
	KindYarnRc          Kind = ".yarnrc.yml"
	KindPyProject       Kind = "pyproject.toml"
)

// Kinds lists every recognised kind.
var Kinds = []Kind{
	KindGoSum, KindGoMod, KindGoWork, KindModulesTxt, KindRequirements,
	KindYarnLock, KindYarnClassicLock, KindPackageJSON, KindYarnRc, KindPyProject,
}

var requirementsPatterns = []string{"*requirements*.txt", "requirements/*.txt", "*.in"}

// Detect returns the kind of the file at path from its name and, for
// yarn.lock, its content.
func Detect(path string) (Kind, error) {
	base := filepath.Base(path)
	switch base {
	case "go.sum", "go.work.sum":
		return KindGoSum, nil
	case "go.mod":
		return KindGoMod, nil
	case "go.work":
		return KindGoWork, nil
	case "modules.txt":
		return KindModulesTxt, nil
	case "package.json":
		return KindPackageJSON, nil
	case ".yarnrc.yml", ".yarnrc.yaml":
		return KindYarnRc, nil
	case "pyproject.toml":
		return KindPyProject, nil
	}

	if base == "yarn.lock" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", path, err)
		}
		if yarnclassic.IsV1(data) {
			return KindYarnClassicLock, nil
		}
		return KindYarnLock, nil
	}

	rel := filepath.ToSlash(filepath.Join(filepath.Base(filepath.Dir(path)), base))
	for _, pattern := range requirementsPatterns {
		if ok, _ := doublestar.Match(pattern, base); ok {
			return KindRequirements, nil
		}
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return KindRequirements, nil
		}
	}
	return "", apperr.UnsupportedFeature(
		fmt.Sprintf("Unsupported file '%s'", base),
		apperr.WithSolution(fmt.Sprintf("Supported files: %v", Kinds)),
	)
}
