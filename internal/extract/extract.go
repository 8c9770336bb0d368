// Package extract turns uploaded files into plain text for chunking.
// Formats are dispatched on file extension; unsupported extensions are
// rejected before the pipeline is entered.
package extract

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Supported reports whether the filename's extension can be extracted.
func Supported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md", ".markdown", ".html", ".htm":
		return true
	}
	return false
}

// Text extracts plain text from the file contents based on its extension.
func Text(filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		return normalize(string(data)), nil
	case ".md", ".markdown":
		return normalize(stripMarkdown(string(data))), nil
	case ".html", ".htm":
		return normalize(stripHTML(string(data))), nil
	default:
		return "", fmt.Errorf("unsupported file type %q", filepath.Ext(filename))
	}
}

var (
	htmlScriptRe  = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	htmlTagRe     = regexp.MustCompile(`(?s)<[^>]+>`)
	htmlEntities  = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'")
	mdCodeFenceRe = regexp.MustCompile("(?s)```.*?```")
	mdInlineRe    = regexp.MustCompile("`([^`]*)`")
	mdLinkRe      = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdImageRe     = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdHeadingRe   = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	mdEmphasisRe  = regexp.MustCompile(`[*_]{1,3}([^*_]+)[*_]{1,3}`)
	blankRunRe    = regexp.MustCompile(`\n{3,}`)
)

func stripHTML(s string) string {
	s = htmlScriptRe.ReplaceAllString(s, " ")
	s = htmlTagRe.ReplaceAllString(s, " ")
	return htmlEntities.Replace(s)
}

func stripMarkdown(s string) string {
	s = mdCodeFenceRe.ReplaceAllString(s, " ")
	s = mdImageRe.ReplaceAllString(s, " ")
	s = mdLinkRe.ReplaceAllString(s, "$1")
	s = mdInlineRe.ReplaceAllString(s, "$1")
	s = mdHeadingRe.ReplaceAllString(s, "")
	s = mdEmphasisRe.ReplaceAllString(s, "$1")
	return s
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t")
	}
	s = strings.Join(lines, "\n")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
