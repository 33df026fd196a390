package assistant

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dshills/skillmarket/pkg/types"
)

// descriptionLimit is the rune length kept from a listing description
const descriptionLimit = 150

// ContextHeader introduces the retrieved context in the system prompt
const ContextHeader = "### CONTEXT INFORMATION ###"

// CategoryExamples groups example listings under a mentioned category keyword
type CategoryExamples struct {
	Keyword  string
	Listings []*types.Listing
}

// ContextBundle is the retrieved context for one chat turn
type ContextBundle struct {
	Semantic   []*types.Listing
	Referenced []*types.Listing
	Categories []CategoryExamples
}

// Empty reports whether no branch contributed anything
func (b *ContextBundle) Empty() bool {
	if len(b.Semantic) > 0 || len(b.Referenced) > 0 {
		return false
	}
	for _, c := range b.Categories {
		if len(c.Listings) > 0 {
			return false
		}
	}
	return true
}

// RenderListing formats one listing as an indented block
func RenderListing(l *types.Listing) string {
	price := "Not specified"
	if l.Price != nil {
		price = fmt.Sprintf("$%.2f", *l.Price)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "- Title: %s\n", l.Title)
	fmt.Fprintf(&b, "  Category: %s\n", l.Category)
	fmt.Fprintf(&b, "  Type: %s\n", l.ListingType)
	fmt.Fprintf(&b, "  Price: %s\n", price)
	fmt.Fprintf(&b, "  Description: %s\n", truncate(l.Description, descriptionLimit))
	fmt.Fprintf(&b, "  Link: /listings/%s", l.ID)
	return b.String()
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}

func renderListings(listings []*types.Listing) string {
	blocks := make([]string, len(listings))
	for i, l := range listings {
		blocks[i] = RenderListing(l)
	}
	return strings.Join(blocks, "\n")
}

// RenderContext formats the non-empty sections of b under ContextHeader.
// It returns "" when b is empty.
func RenderContext(b *ContextBundle) string {
	if b == nil || b.Empty() {
		return ""
	}

	var sections []string
	if len(b.Semantic) > 0 {
		sections = append(sections, "Relevant listings in the marketplace:\n"+renderListings(b.Semantic))
	}
	if len(b.Referenced) > 0 {
		sections = append(sections, "Listings similar to what was mentioned:\n"+renderListings(b.Referenced))
	}

	var groups []string
	for _, c := range b.Categories {
		if len(c.Listings) == 0 {
			continue
		}
		groups = append(groups, fmt.Sprintf("%s:\n%s", categoryLabel(c.Keyword), renderListings(c.Listings)))
	}
	if len(groups) > 0 {
		sections = append(sections, "Example listings by category:\n"+strings.Join(groups, "\n"))
	}

	return ContextHeader + "\n\n" + strings.Join(sections, "\n\n")
}

func categoryLabel(keyword string) string {
	if keyword == "" {
		return keyword
	}
	r, size := utf8.DecodeRuneInString(keyword)
	return strings.ToUpper(string(r)) + keyword[size:]
}
