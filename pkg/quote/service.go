package quote

import (
	"context"
	"time"

	"github.com/alim08/landing/pkg/config"
	"github.com/alim08/landing/pkg/logger"
	"github.com/alim08/landing/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Source tags where an Outcome's record came from.
type Source string

const (
	SourceScraped  Source = "kabutan_crawler"
	SourceFallback Source = "fallback"
)

// Outcome always carries a complete Record. Reason holds the failure that
// caused a fallback and is never shown to callers.
type Outcome struct {
	Record Record
	Source Source
	Reason error
}

// Fallback reports whether the record is the placeholder.
func (o Outcome) Fallback() bool { return o.Source == SourceFallback }

// Service looks up quotes and degrades to Fallback on any failure.
type Service struct {
	fetcher *Fetcher
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithHTTPClient sets the HTTP client used for upstream fetches.
func WithHTTPClient(c HTTPClient) Option {
	return func(s *Service) { s.fetcher.client = c }
}

// WithBaseURL sets the quote page URL.
func WithBaseURL(u string) Option {
	return func(s *Service) { s.fetcher.baseURL = u }
}

// NewService creates a Service from cfg; zero values take the defaults.
func NewService(cfg config.Quote, opts ...Option) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	s := &Service{
		fetcher: &Fetcher{baseURL: baseURL, client: newHTTPClient(timeout), timeout: timeout},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lookup scrapes code and returns the record, or the fallback record when
// any step fails.
func (s *Service) Lookup(ctx context.Context, code string) Outcome {
	now := s.now()

	rec, err := s.scrape(ctx, code, now)
	if err != nil {
		kind := failureKind(err)
		logger.Log.Warn("quote lookup fell back to placeholder",
			zap.String("code", code),
			zap.String("kind", kind),
			zap.Error(err))
		metrics.QuoteFailures.WithLabelValues(kind).Inc()
		metrics.QuoteLookups.WithLabelValues(string(SourceFallback)).Inc()
		return Outcome{Record: Fallback(code, now), Source: SourceFallback, Reason: err}
	}

	metrics.QuoteLookups.WithLabelValues(string(SourceScraped)).Inc()
	return Outcome{Record: rec, Source: SourceScraped}
}

func (s *Service) scrape(ctx context.Context, code string, now time.Time) (Record, error) {
	page, err := s.FetchPage(ctx, code)
	if err != nil {
		return Record{}, err
	}
	if page.Symbol == NotAvailable {
		return Record{}, &ParseFailure{Code: code, Reason: "title not found"}
	}
	return Format(page, code, now)
}

// LookupMany runs one Lookup per code concurrently. Results are in input
// order and one code's failure never affects the others.
func (s *Service) LookupMany(ctx context.Context, codes []string) []Outcome {
	out := make([]Outcome, len(codes))
	var g errgroup.Group
	for i, code := range codes {
		i, code := i, code
		g.Go(func() error {
			out[i] = s.Lookup(ctx, code)
			return nil
		})
	}
	g.Wait()
	return out
}

// FetchPage fetches and extracts code without formatting it.
func (s *Service) FetchPage(ctx context.Context, code string) (*Page, error) {
	html, err := s.fetcher.Fetch(ctx, code)
	if err != nil {
		return nil, err
	}
	return Extract(code, html)
}

// PageData is the success payload of a PageResult.
type PageData struct {
	CompanyName string     `json:"companyName"`
	Symbol      string     `json:"symbol"`
	Data        [][]string `json:"data"`
}

// PageResult is the raw crawler envelope: code 200 with the extracted
// table, or code -1 with an empty data object when the fetch failed.
type PageResult struct {
	Msg  string      `json:"msg"`
	Code int         `json:"code"`
	Data interface{} `json:"data"`
}

const fetchFailedMsg = "リクエストに失敗しました。"

// FetchPages fetches every code concurrently and returns the raw envelopes
// in input order.
func (s *Service) FetchPages(ctx context.Context, codes []string) []PageResult {
	out := make([]PageResult, len(codes))
	var g errgroup.Group
	for i, code := range codes {
		i, code := i, code
		g.Go(func() error {
			page, err := s.FetchPage(ctx, code)
			if err != nil {
				logger.Log.Error("failed to fetch stock page", zap.String("code", code), zap.Error(err))
				out[i] = PageResult{Msg: fetchFailedMsg, Code: -1, Data: struct{}{}}
				return nil
			}
			out[i] = PageResult{
				Msg:  "success",
				Code: 200,
				Data: PageData{CompanyName: page.Name, Symbol: page.Symbol, Data: page.Rows},
			}
			return nil
		})
	}
	g.Wait()
	return out
}
