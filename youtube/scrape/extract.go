// Package scrape is the HTML tier: it loads public YouTube pages and reads
// the state blob the page embeds for its own rendering. Pages change shape
// often, so every reader here degrades to an empty record instead of
// failing when a structure is missing.
package scrape

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// initialDataMarkers are the assignments that introduce ytInitialData, most
// specific first.
var initialDataMarkers = []string{
	"var ytInitialData =",
	`window["ytInitialData"] =`,
	"ytInitialData =",
}

// page is a fetched document with its raw markup.
type page struct {
	body []byte
	doc  *goquery.Document
}

func parsePage(body []byte) (*page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return &page{body: body, doc: doc}, nil
}

// ExtractInitialData returns the ytInitialData object embedded in a page.
func ExtractInitialData(html []byte) (map[string]any, bool) {
	p, err := parsePage(html)
	if err != nil {
		return nil, false
	}
	return p.initialData()
}

func (p *page) initialData() (map[string]any, bool) {
	var data map[string]any
	p.doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		for _, marker := range initialDataMarkers {
			i := strings.Index(text, marker)
			if i < 0 {
				continue
			}
			raw, ok := cutJSONObject(text[i+len(marker):])
			if !ok {
				continue
			}
			if err := json.Unmarshal([]byte(raw), &data); err == nil {
				return false
			}
			data = nil
		}
		return true
	})
	return data, data != nil
}

// cutJSONObject returns the JSON object at the start of s (after optional
// whitespace), matching braces outside of string literals.
func cutJSONObject(s string) (string, bool) {
	start := strings.IndexFunc(s, func(r rune) bool {
		return r != ' ' && r != '\t' && r != '\n' && r != '\r'
	})
	if start < 0 || s[start] != '{' {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
