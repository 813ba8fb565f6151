package featureflag

import (
	"slices"
	"strings"
)

// FeatureFlag is a lookup map of the optional features turned off or on at
// startup.
type FeatureFlag map[Flag]struct{}

// New returns feature flags initialized with a list of flags. Flags are
// trimmed and upper cased. Empty flags are ignored.
func New(flags []string) FeatureFlag {
	featureFlag := make(FeatureFlag, len(flags))
	for _, f := range flags {
		f = strings.ToUpper(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		featureFlag[Flag(f)] = struct{}{}
	}
	return featureFlag
}

// IsSet reports whether flag is set in the feature flags.
func (f FeatureFlag) IsSet(flag Flag) bool {
	_, ok := f[flag]
	return ok
}

// Strings returns the set flags in lexical order.
func (f FeatureFlag) Strings() []string {
	flags := make([]string, 0, len(f))
	for flag := range f {
		flags = append(flags, string(flag))
	}
	slices.Sort(flags)
	return flags
}
