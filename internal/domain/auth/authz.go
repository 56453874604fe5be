package auth

import "strings"

// IsAuthorized reports whether any group membership contains requiredGroup,
// case-insensitively. Memberships are usually full DNs ("CN=<name>,OU=..."), and a
// bare-name match also covers the CN=<name>, form.
//
// Substring matching tolerates differing OU depth and domain components across
// environments. It cannot tell "app" from "app-admin"; that is accepted behavior.
func IsAuthorized(id Identity, requiredGroup string) bool {
	group := strings.ToLower(strings.TrimSpace(requiredGroup))
	if group == "" {
		return false
	}

	for _, dn := range id.Groups {
		if strings.Contains(strings.ToLower(dn), group) {
			return true
		}
	}
	return false
}
