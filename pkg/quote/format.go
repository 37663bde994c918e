package quote

import (
	"strings"
	"time"
)

// rowCells is the number of cells in a price row:
// date, open, high, low, close, change, change percent, volume.
const rowCells = 8

// Record is one day's quote as served by /api/stock.
type Record struct {
	CompanyName   string `json:"companyName"`
	Symbol        string `json:"symbol"`
	Date          string `json:"date"`
	Open          string `json:"open"`
	High          string `json:"high"`
	Low           string `json:"low"`
	Close         string `json:"close"`
	Change        string `json:"change"`
	ChangePercent string `json:"changePercent"`
	Volume        string `json:"volume"`
	Timestamp     string `json:"timestamp"`
}

// Format maps the first table row into a Record. Later rows are older
// trading days and are ignored.
func Format(page *Page, code string, now time.Time) (Record, error) {
	if page == nil || len(page.Rows) == 0 {
		return Record{}, &IncompleteData{Code: code}
	}
	row := page.Rows[0]
	if len(row) < rowCells {
		return Record{}, &IncompleteData{Code: code, Cells: len(row)}
	}

	return Record{
		CompanyName:   page.Name,
		Symbol:        page.Symbol,
		Date:          row[0],
		Open:          stripSeparators(row[1]),
		High:          stripSeparators(row[2]),
		Low:           stripSeparators(row[3]),
		Close:         stripSeparators(row[4]),
		Change:        row[5],
		ChangePercent: row[6],
		Volume:        stripSeparators(row[7]),
		Timestamp:     row[0] + " " + now.Format("15:04"),
	}, nil
}

func stripSeparators(s string) string {
	return strings.ReplaceAll(s, ",", "")
}
