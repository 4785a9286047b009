package idhash

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// headlinePrefixLen bounds the headline contribution so minor edits to a
// long headline do not produce a new hash.
const headlinePrefixLen = 64

// ComputeArticleHash computes a stable article hash using MD5.
// Formula: MD5(source|url|headline[:64])
// Returns hex-encoded hash (32 characters). Collisions are treated as
// duplicates of the same story from the same source.
func ComputeArticleHash(source, url, headline string) string {
	prefix := headline
	if len(prefix) > headlinePrefixLen {
		prefix = prefix[:headlinePrefixLen]
	}

	data := fmt.Sprintf("%s|%s|%s", source, url, prefix)

	hash := md5.Sum([]byte(data))
	return hex.EncodeToString(hash[:])
}
