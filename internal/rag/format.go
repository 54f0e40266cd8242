package rag

import (
	"fmt"
	"strings"
)

// Citation renders the standard "<document>, page <n>" reference for a result.
func Citation(r Result) string {
	return fmt.Sprintf("%s, page %d", r.SourceDocument, r.PageNumber)
}

// FormatCitations returns one citation per result, in result order.
func FormatCitations(results []Result) []string {
	citations := make([]string, len(results))
	for i, r := range results {
		citations[i] = Citation(r)
	}
	return citations
}

// FormatFindings renders retrieved chunks as the markdown context handed to the model.
// The model is asked to cite sources in the Citation format.
func FormatFindings(results []Result) string {
	var b strings.Builder
	b.WriteString("# Research Findings\n\n")
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		fmt.Fprintf(&b, "## Excerpt %d\n", i+1)
		fmt.Fprintf(&b, "**Source:** %s (Page %d)\n", r.SourceDocument, r.PageNumber)
		fmt.Fprintf(&b, "**Relevance Score:** %.2f\n\n", r.Relevance())
		b.WriteString(strings.TrimSpace(r.Text))
		b.WriteString("\n")
	}
	b.WriteString("\nCite sources as (document, page N).\n")
	return b.String()
}
