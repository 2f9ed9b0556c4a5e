package model

import "fmt"

// Version selects which textual representation of a subscription is exported.
type Version string

const (
	// VersionSQL selects the structured-query form (sql_subscription).
	VersionSQL Version = "sql"

	// VersionNLP selects the natural-language form (nlp_subscription).
	VersionNLP Version = "nlp"
)

// ValidVersions lists the recognized version strings.
var ValidVersions = []Version{VersionSQL, VersionNLP}

// ParseVersion validates a version string.
// Returns ErrInvalidArgument for anything other than "sql" or "nlp".
func ParseVersion(s string) (Version, error) {
	switch Version(s) {
	case VersionSQL, VersionNLP:
		return Version(s), nil
	default:
		return "", fmt.Errorf("%w: version %q must be one of %v", ErrInvalidArgument, s, ValidVersions)
	}
}

// Column returns the subscriptions column holding this version's text.
func (v Version) Column() string {
	return string(v) + "_subscription"
}
