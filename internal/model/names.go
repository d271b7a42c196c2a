package model

import "strings"

// NameKey normalises a display name for uniqueness checks
func NameKey(displayName string) string {
	return strings.ToLower(displayName)
}
