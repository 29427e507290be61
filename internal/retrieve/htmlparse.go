// Package retrieve implements the Retrieval Planner (C4): deciding, for a
// remote directory listed over HTTP, which entries to fetch this cycle
// without exceeding the directory's copy caps, and persisting that
// decision so a concurrent helper worker can resume it.
package retrieve

import (
	"encoding/xml"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/afdist/afd/internal/afderr"
)

// Entry is one candidate remote file discovered by a listing, with mtime
// and size left zero/unknown when the layout didn't carry them (§4.4.1).
type Entry struct {
	Name       string
	ModTime    time.Time
	HasModTime bool
	Size       int64
	HasSize    bool
}

// ParseListing dispatches to a layout-specific parser (§4.4.1). A body
// starting with an XML prolog, or with "<feed" in its first 200 bytes, is
// parsed as a feed; otherwise the HTML tree is checked in the fixed order
// <table>, <pre>, <ul>, and the first of these present anywhere in the
// document picks the parser, not the one that appears first. With none of
// them, bare anchors are used.
func ParseListing(body []byte) ([]Entry, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "<?xml") || strings.Contains(trimmed[:min(200, len(trimmed))], "<feed") {
		return parseFeed(body)
	}
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, afderr.New(afderr.ProtocolParse, "", err)
	}
	if hasNode(doc, "table") {
		return parseTable(doc), nil
	}
	if hasNode(doc, "pre") {
		return parsePre(doc), nil
	}
	if hasNode(doc, "ul") {
		return parseList(doc), nil
	}
	return parseAnchorsOnly(doc), nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func hasNode(n *html.Node, tag string) bool {
	if n.Type == html.ElementNode && n.Data == tag {
		return true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if hasNode(c, tag) {
			return true
		}
	}
	return false
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func anchors(n *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func hrefOf(n *html.Node) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == "href" {
			return a.Val, true
		}
	}
	return "", false
}

// classicLineRE matches the trailing "DD-Mon-YYYY HH:MM   size" fragment
// that follows an anchor in the classic Apache fancy-index <PRE> listing.
var classicLineRE = regexp.MustCompile(`(\d{2}-\w{3}-\d{4} \d{2}:\d{2})\s+(\S+)`)

// parsePre handles both the classic Apache "<h1>+<PRE>" layout and the
// NOAA "<h1>+<pre>" variant (no trailing date/size, left unknown).
func parsePre(doc *html.Node) []Entry {
	var entries []Entry
	for _, a := range anchors(doc) {
		href, ok := hrefOf(a)
		if !ok || strings.HasSuffix(href, "/") || href == "../" {
			continue
		}
		e := Entry{Name: href}
		// Look at the raw text following the anchor in its parent PRE
		// block for a date/size tail; NOAA-style listings omit it.
		if tail := siblingText(a); tail != "" {
			if m := classicLineRE.FindStringSubmatch(tail); m != nil {
				if t, err := ParseDate(m[1]); err == nil {
					e.ModTime, e.HasModTime = t, true
				}
				if sz, ok := ParseSize(m[2]); ok {
					e.Size, e.HasSize = sz, true
				}
			}
		}
		entries = append(entries, e)
	}
	return entries
}

// siblingText collects the text of n's following siblings up to (but not
// including) the next anchor, the classic index's date/size tail.
func siblingText(n *html.Node) string {
	var b strings.Builder
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode && s.Data == "a" {
			break
		}
		b.WriteString(textOf(s))
	}
	return b.String()
}

// parseTable handles the "<h1>+<table>" layout: one <tr><td>...</td></tr>
// per entry, fields in {name, date, size} order.
func parseTable(doc *html.Node) []Entry {
	var entries []Entry
	var rows []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			rows = append(rows, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	for _, row := range rows {
		var cells []*html.Node
		for c := row.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
				cells = append(cells, c)
			}
		}
		if len(cells) < 1 {
			continue
		}
		aNodes := anchors(cells[0])
		if len(aNodes) == 0 {
			continue
		}
		href, ok := hrefOf(aNodes[0])
		if !ok || strings.HasSuffix(href, "/") {
			continue
		}
		e := Entry{Name: href}
		if len(cells) > 1 {
			if t, err := ParseDate(strings.TrimSpace(textOf(cells[1]))); err == nil {
				e.ModTime, e.HasModTime = t, true
			}
		}
		if len(cells) > 2 {
			if sz, ok := ParseSize(strings.TrimSpace(textOf(cells[2]))); ok {
				e.Size, e.HasSize = sz, true
			}
		}
		entries = append(entries, e)
	}
	return entries
}

// parseList handles the "<ul>" list-only variant: bare anchors, no
// date/size (resolved later by HEAD per §4.4).
func parseList(doc *html.Node) []Entry {
	return parseAnchorsOnly(doc)
}

func parseAnchorsOnly(doc *html.Node) []Entry {
	var entries []Entry
	for _, a := range anchors(doc) {
		href, ok := hrefOf(a)
		if !ok || href == "" || strings.HasSuffix(href, "/") || href == "../" {
			continue
		}
		entries = append(entries, Entry{Name: href})
	}
	return entries
}

// feed is the minimal Atom/RSS shape retrieval needs: entry names and
// update timestamps.
type feed struct {
	XMLName xml.Name     `xml:"feed"`
	Entries []feedEntry  `xml:"entry"`
	Items   []feedEntry  `xml:"item"` // RSS fallback under <channel>
	Channel feedChannel  `xml:"channel"`
}

type feedChannel struct {
	Items []feedEntry `xml:"item"`
}

type feedEntry struct {
	Title   string `xml:"title"`
	Updated string `xml:"updated"`
	PubDate string `xml:"pubDate"`
	Link    string `xml:"link"`
}

func parseFeed(body []byte) ([]Entry, error) {
	var f feed
	if err := xml.Unmarshal(body, &f); err != nil {
		return nil, afderr.New(afderr.ProtocolParse, "", err)
	}
	items := f.Entries
	if len(items) == 0 {
		items = f.Channel.Items
	}
	if len(items) == 0 {
		items = f.Items
	}
	entries := make([]Entry, 0, len(items))
	for _, it := range items {
		name := it.Title
		if name == "" {
			name = it.Link
		}
		if name == "" {
			continue
		}
		e := Entry{Name: name}
		ts := it.Updated
		if ts == "" {
			ts = it.PubDate
		}
		if ts != "" {
			if t, err := ParseDate(ts); err == nil {
				e.ModTime, e.HasModTime = t, true
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

var dateLayouts = []string{
	"02-Jan-2006 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
}

// ParseDate is the tolerant date parser of §4.4.1: it accepts at least
// "DD-Mon-YYYY HH:MM", "YYYY-MM-DD HH:MM[:SS]", and RFC-3339.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, afderr.New(afderr.ProtocolParse, s, lastErr)
}

var sizeSuffixes = map[byte]int64{
	'K': 1 << 10, 'M': 1 << 20, 'G': 1 << 30,
	'T': 1 << 40, 'P': 1 << 50, 'E': 1 << 60,
}

// ParseSize parses a size with optional K/M/G/T/P/E (powers of 1024)
// suffix; "-" or empty means unknown.
func ParseSize(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0, false
	}
	last := s[len(s)-1]
	if mult, ok := sizeSuffixes[last]; ok {
		n, err := strconv.ParseFloat(s[:len(s)-1], 64)
		if err != nil {
			return 0, false
		}
		return int64(n * float64(mult)), true
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
