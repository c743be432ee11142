package workflow

import (
	"regexp"
	"strings"
)

var sectionBoundary = regexp.MustCompile(`(?m)^\s*(?:\d+[.)]\s+|#{1,6}\s+|[A-Z][A-Za-z ]{0,60}:\s*$)`)

// ExtractDocumentSections splits document text on numbered, heading and
// blank-line boundaries so document-aware steps can target individual
// sections. It always returns at least one section: the whole text.
func ExtractDocumentSections(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return []string{text}
	}

	var sections []string
	for _, block := range strings.Split(trimmed, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}

		// Split the block further on heading/numbered boundaries.
		idxs := sectionBoundary.FindAllStringIndex(block, -1)
		if len(idxs) <= 1 {
			sections = append(sections, block)
			continue
		}

		prev := 0
		for _, loc := range idxs {
			if loc[0] > prev {
				if part := strings.TrimSpace(block[prev:loc[0]]); part != "" {
					sections = append(sections, part)
				}
			}
			prev = loc[0]
		}
		if part := strings.TrimSpace(block[prev:]); part != "" {
			sections = append(sections, part)
		}
	}

	if len(sections) == 0 {
		return []string{trimmed}
	}
	return sections
}
