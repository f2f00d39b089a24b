package fingerprint

import (
	"strconv"

	"github.com/spaolacci/murmur3"
)

// HashFavicon computes the mmh3 hash of favicon bytes in the signed
// 32-bit form used by Shodan-style favicon lookups.
func HashFavicon(data []byte) int32 {
	return int32(murmur3.Sum32(data))
}

// faviconHashes maps known mmh3 favicon hashes to technology names.
// Extend via scan presets rather than editing this table.
var faviconHashes = map[int32]string{
	81586312:   "Jenkins",
	116323821:  "Spring Boot",
	-235701012: "Jira",
	1278323681: "GitLab",
	-977323269: "Grafana",
	999357577:  "phpMyAdmin",
}

// LookupFavicon returns the technology for a favicon hash, if known.
func LookupFavicon(hash int32) (Technology, bool) {
	name, ok := faviconHashes[hash]
	if !ok {
		return Technology{}, false
	}
	return Technology{
		Name:     name,
		Evidence: "favicon mmh3:" + strconv.FormatInt(int64(hash), 10),
	}, true
}
