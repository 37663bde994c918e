package quote

import "time"

// Fallback is the placeholder record served when scraping fails. The price
// fields are fixed literals.
func Fallback(code string, now time.Time) Record {
	return Record{
		CompanyName:   "株式会社" + code,
		Symbol:        code,
		Date:          now.Format("2006/01/02"),
		Open:          "15615",
		High:          "15890",
		Low:           "15580",
		Close:         "15865",
		Change:        "+250",
		ChangePercent: "+1.6",
		Volume:        "75200",
		Timestamp:     now.Format("2006/01/02 15:04"),
	}
}
