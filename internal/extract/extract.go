// Package extract turns fetched HTML into page records using goquery.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/JakeFAU/sitescrape/internal/crawler"
)

const (
	hiddenSelector = "script, style, noscript, template"
	textSelector   = "h1, h2, h3, h4, h5, h6, p, li"
)

var fileExtensions = map[string]struct{}{
	".pdf":  {},
	".zip":  {},
	".xls":  {},
	".xlsx": {},
	".doc":  {},
	".docx": {},
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".svg":  {},
}

// Extractor implements crawler.Extractor.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract decodes and parses body, then extracts the record for pageURL.
// pageURL is also the base for resolving relative references.
func (e *Extractor) Extract(pageURL string, body []byte, contentType string) (crawler.Extraction, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return crawler.Extraction{}, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := Parse(body, contentType)
	if err != nil {
		return crawler.Extraction{}, err
	}
	return Extract(base, doc), nil
}

// Parse decodes body to UTF-8 according to contentType (and any in-document
// charset declaration) and builds a goquery document. Malformed markup is
// repaired by the HTML5 parser rather than rejected.
func Parse(body []byte, contentType string) (*goquery.Document, error) {
	var r io.Reader = bytes.NewReader(body)
	if decoded, err := charset.NewReader(r, contentType); err == nil {
		r = decoded
	} else {
		r = bytes.NewReader(body)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Extract builds the page record and collects raw anchor hrefs. Non-visible
// subtrees are removed from doc first, so repeated calls on the same document
// return the same result.
func Extract(base *url.URL, doc *goquery.Document) crawler.Extraction {
	doc.Find(hiddenSelector).Remove()

	record := crawler.PageRecord{
		URL:         base.String(),
		Title:       strings.TrimSpace(doc.Find("title").First().Text()),
		Description: strings.TrimSpace(doc.Find(`meta[name="description"]`).First().AttrOr("content", "")),
		Images:      []string{},
		Files:       []string{},
	}

	var parts []string
	doc.Find(textSelector).Each(func(_ int, s *goquery.Selection) {
		if text := visibleText(s); text != "" {
			parts = append(parts, text)
		}
	})
	record.Text = strings.Join(parts, " ")

	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" {
			return
		}
		if abs, ok := resolve(base, src); ok {
			record.Images = append(record.Images, abs)
		}
	})

	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := s.AttrOr("href", "")
		links = append(links, href)
		if !isFileLink(href) {
			return
		}
		if abs, ok := resolve(base, href); ok {
			record.Files = append(record.Files, abs)
		}
	})

	return crawler.Extraction{Record: record, Links: links}
}

// visibleText joins the trimmed, non-empty text nodes under s with spaces.
func visibleText(s *goquery.Selection) string {
	var parts []string
	for _, n := range s.Nodes {
		collectText(n, &parts)
	}
	return strings.Join(parts, " ")
}

func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			*parts = append(*parts, t)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}

func isFileLink(href string) bool {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return false
	}
	_, ok := fileExtensions[strings.ToLower(path.Ext(u.Path))]
	return ok
}

func resolve(base *url.URL, ref string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", false
	}
	return base.ResolveReference(u).String(), true
}
