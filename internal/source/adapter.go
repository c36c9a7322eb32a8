package source

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Entry is one candidate posting found on a listing page.
type Entry struct {
	Title      string
	Link       string
	Excerpt    string
	TimeMarker string
}

// Detail is the raw material pulled from a detail page.
type Detail struct {
	Text       string
	TimeMarker string
}

// Adapter applies a Descriptor to fetched pages.
type Adapter struct {
	desc  Descriptor
	promo *PromoFilter
}

// New builds an Adapter. promo may be nil.
func New(desc Descriptor, promo *PromoFilter) *Adapter {
	return &Adapter{desc: desc.WithDefaults(), promo: promo}
}

// Descriptor returns the effective descriptor.
func (a *Adapter) Descriptor() Descriptor {
	return a.desc
}

// Name returns the source name.
func (a *Adapter) Name() string {
	return a.desc.Name
}

// ListEntries extracts up to MaxItems entries from a listing page. Entries without a
// title or an http(s) link, and promotional entries, are dropped.
func (a *Adapter) ListEntries(body []byte, pageURL string) ([]Entry, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}
	containers := firstMatch(doc.Selection, a.desc.Listing)
	if containers == nil {
		return nil, nil
	}
	var entries []Entry
	containers.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if a.desc.MaxItems > 0 && len(entries) >= a.desc.MaxItems {
			return false
		}
		entry, ok := a.entry(s, base)
		if !ok || a.promo.Blocked(entry.Title, entry.Link) {
			return true
		}
		entries = append(entries, entry)
		return true
	})
	return entries, nil
}

func (a *Adapter) entry(s *goquery.Selection, base *url.URL) (Entry, bool) {
	anchor := findAnchor(s, a.desc.TitleLink)
	if anchor == nil && goquery.NodeName(s) == "a" && usableAnchor(s) {
		anchor = s
	}
	if anchor == nil {
		return Entry{}, false
	}
	href, _ := anchor.Attr("href")
	link, ok := resolveLink(base, href)
	if !ok {
		return Entry{}, false
	}
	entry := Entry{
		Title: collapse(anchor.Text()),
		Link:  link,
	}
	if ex := firstMatch(s, a.desc.Excerpt); ex != nil {
		entry.Excerpt = collapse(ex.First().Text())
	}
	if tm := firstMatch(s, a.desc.Time); tm != nil {
		first := tm.First()
		if v, ok := first.Attr("datetime"); ok && strings.TrimSpace(v) != "" {
			entry.TimeMarker = strings.TrimSpace(v)
		} else {
			entry.TimeMarker = collapse(first.Text())
		}
	}
	return entry, true
}

// Detail extracts the content text and time marker from a detail page.
func (a *Adapter) Detail(body []byte) (Detail, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Detail{}, fmt.Errorf("parse detail html: %w", err)
	}
	var d Detail
	for _, sel := range nonEmpty(a.desc.Content) {
		found := doc.Find(sel)
		if found.Length() == 0 {
			continue
		}
		if text := BlockText(found.First()); text != "" {
			d.Text = text
			break
		}
	}
	if v, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		d.TimeMarker = strings.TrimSpace(v)
	}
	return d, nil
}

// firstMatch returns the matches of the first selector that finds anything, or nil.
func firstMatch(root *goquery.Selection, selectors []string) *goquery.Selection {
	for _, sel := range nonEmpty(selectors) {
		if found := root.Find(sel); found.Length() > 0 {
			return found
		}
	}
	return nil
}

func findAnchor(root *goquery.Selection, selectors []string) *goquery.Selection {
	for _, sel := range nonEmpty(selectors) {
		var hit *goquery.Selection
		root.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if usableAnchor(s) {
				hit = s
				return false
			}
			return true
		})
		if hit != nil {
			return hit
		}
	}
	return nil
}

func usableAnchor(s *goquery.Selection) bool {
	href, ok := s.Attr("href")
	return ok && strings.TrimSpace(href) != "" && collapse(s.Text()) != ""
}

func resolveLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	abs.Fragment = ""
	return abs.String(), true
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var lineBreaks = strings.NewReplacer("\r", " ", "\n", " ")

var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true, atom.Br: true,
	atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true, atom.Figcaption: true, atom.Figure: true,
	atom.Footer: true, atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true,
	atom.H6: true, atom.Header: true, atom.Hr: true, atom.Li: true, atom.Main: true, atom.Ol: true,
	atom.P: true, atom.Pre: true, atom.Section: true, atom.Table: true, atom.Td: true, atom.Th: true,
	atom.Tr: true, atom.Ul: true,
}

// BlockText renders the selection as text with one line per block element.
// Script, style and noscript content is skipped and blank lines are dropped.
func BlockText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		writeText(&b, n)
	}
	lines := strings.Split(b.String(), "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = collapse(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		// Line breaks come from block elements only.
		b.WriteString(lineBreaks.Replace(n.Data))
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Template:
			return
		}
	}
	block := n.Type == html.ElementNode && blockElements[n.DataAtom]
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
	if block {
		b.WriteByte('\n')
	}
}
