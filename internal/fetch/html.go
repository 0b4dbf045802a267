// Copyright Peton Labs, 2026. All rights reserved.

package fetch

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// htmlToText extracts readable text from an HTML page. Chrome elements
// (scripts, navigation, footers) are stripped first; when the page has
// a main or article element, only its content is used.
func htmlToText(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}

	doc.Find("script, style, nav, header, footer, aside, noscript").Remove()

	root := doc.Selection
	if main := doc.Find("main, article").First(); main.Length() > 0 {
		root = main
	}

	var buf bytes.Buffer
	root.Find("p, h1, h2, h3, h4, h5, h6, li, td, th, blockquote").Each(func(_ int, s *goquery.Selection) {
		if text := s.Text(); text != "" {
			buf.WriteString(text)
			buf.WriteByte('\n')
		}
	})

	// Pages built without semantic markup fall back to the whole body.
	if buf.Len() == 0 {
		buf.WriteString(root.Text())
	}
	return CleanText(buf.String()), nil
}
