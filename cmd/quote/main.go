package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alim08/landing/pkg/config"
	"github.com/alim08/landing/pkg/logger"
	"github.com/alim08/landing/pkg/quote"
)

// quote looks up one or more stock codes from the command line and prints
// the records as JSON. With -raw it prints the crawler envelopes instead.
func main() {
	qcfg := config.QuoteFromEnv()
	lcfg := config.LogFromEnv()

	var codesCSV string
	var raw bool

	flag.StringVar(&codesCSV, "codes", "7203", "comma-separated stock codes")
	flag.BoolVar(&raw, "raw", false, "print the extracted tables instead of formatted records")
	flag.DurationVar(&qcfg.Timeout, "timeout", qcfg.Timeout, "per request timeout")
	flag.StringVar(&qcfg.BaseURL, "base-url", qcfg.BaseURL, "quote page base URL")
	flag.StringVar(&lcfg.Level, "log-level", lcfg.Level, "log level")
	flag.Parse()

	if err := logger.Init(lcfg.Level, "console"); err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer logger.Log.Sync()

	codes := splitCSV(codesCSV)
	if len(codes) == 0 {
		fmt.Fprintln(os.Stderr, "no codes given")
		os.Exit(2)
	}

	svc := quote.NewService(qcfg)
	ctx, cancel := context.WithTimeout(context.Background(), qcfg.Timeout+5*time.Second)
	defer cancel()

	var out interface{}
	if raw {
		out = svc.FetchPages(ctx, codes)
	} else {
		results := make([]map[string]interface{}, 0, len(codes))
		for _, o := range svc.LookupMany(ctx, codes) {
			results = append(results, map[string]interface{}{
				"data":     o.Record,
				"source":   o.Source,
				"fallback": o.Fallback(),
			})
		}
		out = results
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
