package quote

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	// TableClass marks the daily price history table.
	TableClass = "stock_kabuka0"
	// NotAvailable is returned for a missing title or image.
	NotAvailable = "N/A"

	imageSelector = "div#chc_3_1.ch_sz1 img"
)

// titlePattern accepts Unicode digits and separators such as NBSP and the
// ideographic space.
var titlePattern = regexp.MustCompile(`^(\p{Nd}+)[\s\p{Z}]+(.+)`)

// Page is what the extractor pulls out of one quote page.
type Page struct {
	Rows     [][]string
	Symbol   string
	Name     string
	ImageURL string
}

// CleanText drops spaces and newlines anywhere in s, then trims what is left.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\n", "")
	return strings.TrimSpace(s)
}

// ParseTable returns the cleaned th/td text of every row under the table
// with the given class. A missing table yields no rows.
func ParseTable(doc *goquery.Document, class string, skipHeader bool) [][]string {
	rows := doc.Find("." + class + " tr")
	if skipHeader {
		rows = rows.Slice(min(1, rows.Length()), rows.Length())
	}

	out := make([][]string, 0, rows.Length())
	rows.Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("th, td")
		line := make([]string, 0, cells.Length())
		cells.Each(func(_ int, cell *goquery.Selection) {
			line = append(line, CleanText(cell.Text()))
		})
		out = append(out, line)
	})
	return out
}

// ParseTitle splits the first h2 into the leading digits and the rest.
func ParseTitle(doc *goquery.Document) (symbol, name string) {
	h2 := doc.Find("h2").First()
	if h2.Length() == 0 {
		return NotAvailable, NotAvailable
	}
	m := titlePattern.FindStringSubmatch(strings.TrimSpace(h2.Text()))
	if m == nil {
		return NotAvailable, NotAvailable
	}
	return m[1], m[2]
}

// ParseImage returns the company chart image URL.
func ParseImage(doc *goquery.Document) string {
	src, ok := doc.Find(imageSelector).First().Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		return NotAvailable
	}
	return strings.TrimSpace(src)
}

// Extract parses html once and runs the table, title and image steps.
func Extract(code, html string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &ParseFailure{Code: code, Reason: "invalid html", Err: err}
	}

	symbol, name := ParseTitle(doc)
	return &Page{
		Rows:     ParseTable(doc, TableClass, true),
		Symbol:   symbol,
		Name:     name,
		ImageURL: ParseImage(doc),
	}, nil
}
