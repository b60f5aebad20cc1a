package templates

import (
	"strings"

	"golang.org/x/mod/semver"

	"github.com/tasklattice/tasklattice/internal/types"
)

// DefaultVersion is assigned to templates created without a version.
const DefaultVersion = "v1.0.0"

// NormalizeVersion returns the canonical vMAJOR.MINOR.PATCH form of v.
// The leading "v" is optional and missing minor or patch parts are zero.
func NormalizeVersion(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return DefaultVersion, nil
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return "", types.Validationf("version %q is not a semantic version", strings.TrimPrefix(v, "v"))
	}
	return semver.Canonical(v), nil
}

// Newer reports whether version a sorts after version b. Both must be
// canonical.
func Newer(a, b string) bool {
	return semver.Compare(a, b) > 0
}
