package quote_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/alim08/landing/pkg/config"
	"github.com/alim08/landing/pkg/quote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const quotePage = `<html><body>
<h2>7203 トヨタ自動車</h2>
<div id="chc_3_1" class="ch_sz1"><img src=" https://example.com/chart/7203.png "></div>
<table class="stock_kabuka0">
<tr><th>日付</th><th>始値</th><th>高値</th><th>安値</th><th>終値</th><th>前日比</th><th>前日比％</th><th>売買高(株)</th></tr>
<tr><th><time datetime="2025-01-10">25/01/10</time></th><td>2,850</td><td>2,900</td><td>2,840</td><td>2,895</td><td>+45</td><td>+1.58</td><td>15,865,000</td></tr>
<tr><th>25/01/09</th><td>2,800</td><td>2,860</td><td>2,790</td><td>2,850</td><td>-10</td><td>-0.35</td><td>12,001,000</td></tr>
</table>
</body></html>`

var fixedNow = time.Date(2025, 1, 10, 9, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func newUpstream(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, ok := pages[r.URL.Query().Get("code")]
		if !ok {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, page)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newService(srv *httptest.Server) *quote.Service {
	return quote.NewService(config.Quote{BaseURL: srv.URL, Timeout: 2 * time.Second}, quote.WithClock(clock))
}

func wantFallback(code string) quote.Record {
	return quote.Record{
		CompanyName:   "株式会社" + code,
		Symbol:        code,
		Date:          "2025/01/10",
		Open:          "15615",
		High:          "15890",
		Low:           "15580",
		Close:         "15865",
		Change:        "+250",
		ChangePercent: "+1.6",
		Volume:        "75200",
		Timestamp:     "2025/01/10 09:30",
	}
}

func TestCleanText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1234", quote.CleanText(" 1 234 \n"))
	assert.Equal(t, "+1.6", quote.CleanText("\t+1.6\t"))
	assert.Equal(t, "", quote.CleanText(" \n "))
}

func TestExtract(t *testing.T) {
	t.Parallel()

	page, err := quote.Extract("7203", quotePage)
	require.NoError(t, err)

	assert.Equal(t, "7203", page.Symbol)
	assert.Equal(t, "トヨタ自動車", page.Name)
	assert.Equal(t, "https://example.com/chart/7203.png", page.ImageURL)
	require.Len(t, page.Rows, 2, "header row should be skipped")
	assert.Equal(t, []string{"25/01/10", "2,850", "2,900", "2,840", "2,895", "+45", "+1.58", "15,865,000"}, page.Rows[0])
}

func TestExtract_MissingPieces(t *testing.T) {
	t.Parallel()

	page, err := quote.Extract("1", `<html><body><h2>no digits here</h2></body></html>`)
	require.NoError(t, err)

	assert.Empty(t, page.Rows)
	assert.Equal(t, quote.NotAvailable, page.Symbol)
	assert.Equal(t, quote.NotAvailable, page.Name)
	assert.Equal(t, quote.NotAvailable, page.ImageURL)
}

func TestParseTable_KeepHeader(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(quotePage))
	require.NoError(t, err)

	rows := quote.ParseTable(doc, quote.TableClass, false)
	require.Len(t, rows, 3)
	assert.Equal(t, "日付", rows[0][0])
}

func TestParseTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		h2     string
		symbol string
		title  string
	}{
		{"ascii space", "7203 トヨタ自動車", "7203", "トヨタ自動車"},
		{"nbsp", "7203&nbsp;トヨタ自動車", "7203", "トヨタ自動車"},
		{"ideographic space", "7203\u3000トヨタ自動車", "7203", "トヨタ自動車"},
		{"surrounding whitespace", "\n  6758 ソニーグループ  \n", "6758", "ソニーグループ"},
		{"no digits", "トヨタ自動車", quote.NotAvailable, quote.NotAvailable},
		{"digits only", "7203", quote.NotAvailable, quote.NotAvailable},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			doc, err := goquery.NewDocumentFromReader(strings.NewReader("<html><body><h2>" + tt.h2 + "</h2></body></html>"))
			require.NoError(t, err)

			symbol, title := quote.ParseTitle(doc)
			assert.Equal(t, tt.symbol, symbol)
			assert.Equal(t, tt.title, title)
		})
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	page, err := quote.Extract("7203", quotePage)
	require.NoError(t, err)

	rec, err := quote.Format(page, "7203", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, quote.Record{
		CompanyName:   "トヨタ自動車",
		Symbol:        "7203",
		Date:          "25/01/10",
		Open:          "2850",
		High:          "2900",
		Low:           "2840",
		Close:         "2895",
		Change:        "+45",
		ChangePercent: "+1.58",
		Volume:        "15865000",
		Timestamp:     "25/01/10 09:30",
	}, rec)
}

func TestFormat_ShortRow(t *testing.T) {
	t.Parallel()

	page := &quote.Page{Rows: [][]string{{"25/01/10", "1", "2"}}, Symbol: "1", Name: "x"}
	_, err := quote.Format(page, "1", fixedNow)
	require.ErrorIs(t, err, quote.ErrIncompleteData)

	var incomplete *quote.IncompleteData
	require.True(t, errors.As(err, &incomplete))
	assert.Equal(t, 3, incomplete.Cells)

	_, err = quote.Format(&quote.Page{}, "1", fixedNow)
	require.ErrorIs(t, err, quote.ErrIncompleteData)
}

func TestFallback(t *testing.T) {
	t.Parallel()

	assert.Equal(t, wantFallback("6758"), quote.Fallback("6758", fixedNow))
}

func TestLookup_Scraped(t *testing.T) {
	t.Parallel()

	svc := newService(newUpstream(t, map[string]string{"7203": quotePage}))

	out := svc.Lookup(context.Background(), "7203")
	require.NoError(t, out.Reason)
	assert.Equal(t, quote.SourceScraped, out.Source)
	assert.False(t, out.Fallback())
	assert.Equal(t, "15865000", out.Record.Volume)
	assert.Equal(t, "2895", out.Record.Close)
}

func TestLookup_FallbackCases(t *testing.T) {
	t.Parallel()

	shortRow := `<h2>1111 短い</h2><table class="stock_kabuka0"><tr><th>h</th></tr><tr><td>25/01/10</td><td>1</td></tr></table>`
	noTitle := strings.Replace(quotePage, "<h2>7203 トヨタ自動車</h2>", "<h2>トヨタ自動車</h2>", 1)

	svc := newService(newUpstream(t, map[string]string{
		"1111": shortRow,
		"2222": noTitle,
	}))

	tests := []struct {
		name string
		code string
		want error
	}{
		{"upstream error status", "9999", quote.ErrNetwork},
		{"short row", "1111", quote.ErrIncompleteData},
		{"unparseable title", "2222", quote.ErrParse},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out := svc.Lookup(context.Background(), tt.code)
			assert.Equal(t, quote.SourceFallback, out.Source)
			assert.True(t, out.Fallback())
			assert.ErrorIs(t, out.Reason, tt.want)
			assert.Equal(t, wantFallback(tt.code), out.Record)
		})
	}
}

func TestLookup_TransportError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "code=7203", req.URL.RawQuery)
			require.True(t, strings.HasPrefix(req.URL.String(), "http://quotes.test/stock/kabuka"))
			require.NotEmpty(t, req.Header.Get("User-Agent"))
			return nil, context.DeadlineExceeded
		}).
		Times(1)

	svc := quote.NewService(config.Quote{},
		quote.WithHTTPClient(httpClient),
		quote.WithBaseURL("http://quotes.test/stock/kabuka"),
		quote.WithClock(clock))

	out := svc.Lookup(context.Background(), "7203")
	assert.Equal(t, quote.SourceFallback, out.Source)
	require.ErrorIs(t, out.Reason, quote.ErrNetwork)
	require.ErrorIs(t, out.Reason, context.DeadlineExceeded)

	var nf *quote.NetworkFailure
	require.True(t, errors.As(out.Reason, &nf))
	assert.Equal(t, "7203", nf.Code)
}

func TestLookup_EnforcesTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		io.WriteString(w, quotePage)
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	svc := quote.NewService(config.Quote{BaseURL: srv.URL, Timeout: 100 * time.Millisecond}, quote.WithClock(clock))

	start := time.Now()
	out := svc.Lookup(context.Background(), "7203")
	elapsed := time.Since(start)

	assert.True(t, out.Fallback())
	require.ErrorIs(t, out.Reason, quote.ErrNetwork)
	assert.Less(t, elapsed, time.Second, "lookup should give up after the configured timeout")
	assert.Equal(t, wantFallback("7203"), out.Record)
}

func TestLookup_QueryEscaped(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "a b&c", req.URL.Query().Get("code"))
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(quotePage)),
			}, nil
		}).
		Times(1)

	svc := quote.NewService(config.Quote{BaseURL: "http://quotes.test/kabuka"}, quote.WithHTTPClient(httpClient), quote.WithClock(clock))
	out := svc.Lookup(context.Background(), "a b&c")
	assert.Equal(t, quote.SourceScraped, out.Source)
}

func TestLookupMany_IsolatesFailures(t *testing.T) {
	t.Parallel()

	svc := newService(newUpstream(t, map[string]string{
		"7203": quotePage,
		"6758": strings.Replace(quotePage, "7203 トヨタ自動車", "6758 ソニーグループ", 1),
	}))

	codes := []string{"7203", "9999", "6758"}
	outs := svc.LookupMany(context.Background(), codes)
	require.Len(t, outs, len(codes))

	assert.Equal(t, quote.SourceScraped, outs[0].Source)
	assert.Equal(t, "7203", outs[0].Record.Symbol)

	assert.Equal(t, quote.SourceFallback, outs[1].Source)
	assert.Equal(t, wantFallback("9999"), outs[1].Record)

	assert.Equal(t, quote.SourceScraped, outs[2].Source)
	assert.Equal(t, "ソニーグループ", outs[2].Record.CompanyName)
}

func TestFetchPages_RawEnvelope(t *testing.T) {
	t.Parallel()

	svc := newService(newUpstream(t, map[string]string{"7203": quotePage}))

	results := svc.FetchPages(context.Background(), []string{"7203", "9999"})
	require.Len(t, results, 2)

	assert.Equal(t, 200, results[0].Code)
	assert.Equal(t, "success", results[0].Msg)
	data, ok := results[0].Data.(quote.PageData)
	require.True(t, ok)
	assert.Equal(t, "トヨタ自動車", data.CompanyName)
	assert.Len(t, data.Data, 2)

	raw, err := json.Marshal(results[1])
	require.NoError(t, err)
	assert.JSONEq(t, `{"msg":"リクエストに失敗しました。","code":-1,"data":{}}`, string(raw))
}
