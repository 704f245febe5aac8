package model

import "fmt"

// Profile is a named privacy tier for rendered output.
type Profile string

const (
	ProfileInternal Profile = "internal"
	ProfileManager  Profile = "manager"
	ProfilePublic   Profile = "public"
)

// Profiles lists every recognized profile from least to most aggressive.
var Profiles = []Profile{ProfileInternal, ProfileManager, ProfilePublic}

// ParseProfile validates a profile name.
func ParseProfile(s string) (Profile, error) {
	for _, p := range Profiles {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown redaction profile %q: must be one of %v", s, Profiles)
}

// Rank orders profiles by aggressiveness: internal=0, manager=1, public=2.
// Unknown profiles rank as the most aggressive.
func (p Profile) Rank() int {
	for i, q := range Profiles {
		if p == q {
			return i
		}
	}
	return len(Profiles)
}

// AtLeast reports whether p is at least as aggressive as q.
func (p Profile) AtLeast(q Profile) bool {
	return p.Rank() >= q.Rank()
}
