package resultcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/docqa-labs/retriever/internal/domain"
)

// DefaultUser replaces blank user identifiers in cache keys.
const DefaultUser = "anonymous"

// BuildKey derives the deterministic cache key for a search. The query text
// is re-normalized and hashed so raw queries never leak into the backend's
// keyspace and key length stays bounded. configVersion fingerprints the
// result-affecting tunables, so a config change orphans stale entries
// instead of serving them.
func BuildKey(prefix, configVersion, queryText string, maxResults int, userID string, minScore float64) string {
	normalized := domain.CollapseWhitespace(queryText)
	sum := sha256.Sum256([]byte(normalized))

	user := strings.TrimSpace(userID)
	if user == "" {
		user = DefaultUser
	}

	return fmt.Sprintf("%ssearch:v=%s:q=%s:n=%d:u=%s:s=%.2f",
		prefix, configVersion, hex.EncodeToString(sum[:]), maxResults, user, minScore,
	)
}
