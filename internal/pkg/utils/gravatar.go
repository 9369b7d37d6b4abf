package utils

import (
	"crypto/md5"
	"fmt"
	"strings"
)

// GetGravatarURL builds the Gravatar avatar URL for an email address.
// Size falls back to 200px, the "mp" default gives a neutral silhouette.
func GetGravatarURL(email string, size int) string {
	if size <= 0 {
		size = 200
	}

	// Gravatar hashes the trimmed, lowercased address
	email = strings.ToLower(strings.TrimSpace(email))

	hash := md5.Sum([]byte(email))
	hashString := fmt.Sprintf("%x", hash)

	return fmt.Sprintf("https://www.gravatar.com/avatar/%s?s=%d&d=mp", hashString, size)
}
