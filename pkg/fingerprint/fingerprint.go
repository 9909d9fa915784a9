// Package fingerprint derives deterministic identifiers for duplicate groups.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// memberSeparator joins member IDs inside the hash input. The unit separator
// cannot appear in an ID, so distinct memberships never collide.
const memberSeparator = "\x1f"

// groupIDLength is the number of hex characters kept from the digest. 64 bits
// is plenty for group counts in the low millions and keeps IDs readable in
// logs and flag columns.
const groupIDLength = 16

// GroupID returns a stable identifier for a set of member contact IDs. The
// same membership produces the same ID regardless of input order, so repeated
// detection runs name the same group identically.
func GroupID(memberIDs []string) string {
	sorted := make([]string, len(memberIDs))
	copy(sorted, memberIDs)
	sort.Strings(sorted)

	hash := sha256.Sum256([]byte(strings.Join(sorted, memberSeparator)))
	return hex.EncodeToString(hash[:])[:groupIDLength]
}

// HasChanged compares two fingerprints to detect changes
func HasChanged(oldFingerprint, newFingerprint string) bool {
	return oldFingerprint != newFingerprint
}
