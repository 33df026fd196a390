package assistant

import (
	"regexp"
	"strings"
)

// listingReferencePattern matches in-app listing links such as
// /listings/3f2a9c1e-7b4d-4e8a-9c2f-0a1b2c3d4e5f
var listingReferencePattern = regexp.MustCompile(`/listings/([0-9a-fA-F-]+)`)

// CategoryKeywords is the vocabulary scanned for category mentions
var CategoryKeywords = []string{
	"photography",
	"programming",
	"design",
	"music",
	"writing",
	"language",
	"fitness",
	"cooking",
	"business",
	"technology",
	"education",
	"lifestyle",
}

// ExtractListingReferences returns every referenced listing id in texts, in
// order of appearance. Duplicates are kept.
func ExtractListingReferences(texts ...string) []string {
	var refs []string
	for _, text := range texts {
		for _, m := range listingReferencePattern.FindAllStringSubmatch(text, -1) {
			refs = append(refs, m[1])
		}
	}
	return refs
}

// MostRecentReference returns the last listing id referenced across texts,
// which are expected oldest first.
func MostRecentReference(texts ...string) (string, bool) {
	refs := ExtractListingReferences(texts...)
	if len(refs) == 0 {
		return "", false
	}
	return refs[len(refs)-1], true
}

// ExtractCategoryMentions returns the vocabulary words that occur in any of
// texts, ignoring case. Results are distinct and follow vocabulary order.
func ExtractCategoryMentions(vocabulary []string, texts ...string) []string {
	lowered := make([]string, len(texts))
	for i, text := range texts {
		lowered[i] = strings.ToLower(text)
	}

	found := make([]string, 0)
	seen := make(map[string]struct{}, len(vocabulary))
	for _, word := range vocabulary {
		key := strings.ToLower(word)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		for _, text := range lowered {
			if strings.Contains(text, key) {
				seen[key] = struct{}{}
				found = append(found, key)
				break
			}
		}
	}
	return found
}
