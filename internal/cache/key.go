// Copyright Peton Labs, 2026. All rights reserved.

package cache

import (
	"crypto/md5"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/petonlabs/systematic-review-data-extraction/pkg/types"
)

// docExt is the extension appended to every cache key.
const docExt = ".pdf"

// KeyFor derives the deterministic storage key for an item's
// identifiers: normalized DOI first, then PMID, then a hash of the
// title. At most two parts are joined to keep names reasonable. The
// same article maps to the same key regardless of which identifiers
// were present on a given run. ok is false when no identifier exists;
// Store then falls back to a content-hash key.
func (s *Store) KeyFor(item types.WorkItem) (key string, ok bool) {
	var parts []string

	if doi := NormalizeDOI(item.DOI); doi != "" {
		safe := strings.NewReplacer("/", "_", ":", "_").Replace(doi)
		parts = append(parts, "doi_"+safe)
	}
	if pmid := strings.TrimSpace(item.PMID); pmid != "" {
		parts = append(parts, "pmid_"+pmid)
	}
	if title := strings.TrimSpace(item.Title); title != "" {
		sum := md5.Sum([]byte(title))
		parts = append(parts, fmt.Sprintf("title_%x", sum[:4]))
	}

	if len(parts) == 0 {
		return "", false
	}
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return s.prefix + strings.Join(parts, "_") + docExt, true
}

// contentKey hashes the document bytes. Used only when the item carries
// no identifiers, so reruns that re-download the same bytes still dedupe.
func (s *Store) contentKey(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%scontent_%x%s", s.prefix, sum[:8], docExt)
}

// NormalizeDOI strips resolver URL prefixes from a DOI.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	for _, p := range []string{
		"https://doi.org/",
		"http://doi.org/",
		"https://dx.doi.org/",
		"http://dx.doi.org/",
	} {
		doi = strings.TrimPrefix(doi, p)
	}
	return doi
}
