package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wolfman30/booking-agent/cmd/mainconfig"
	"github.com/wolfman30/booking-agent/internal/app/bootstrap"
	"github.com/wolfman30/booking-agent/internal/faq"
	"github.com/wolfman30/booking-agent/internal/llm"
	"github.com/wolfman30/booking-agent/pkg/logging"
)

// entry is one FAQ in the seed file: a JSON array of {"question","answer"}.
type entry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func main() {
	tenant := flag.String("business", "", "business id the FAQs belong to (defaults to DEFAULT_BUSINESS_ID)")
	file := flag.String("file", "", "path to the FAQ JSON file")
	flag.Parse()

	cfg, _ := mainconfig.Load()
	logger := mainconfig.Logger(cfg)
	if *tenant == "" {
		*tenant = cfg.DefaultBusinessID
	}
	if *tenant == "" || *file == "" {
		fmt.Fprintln(os.Stderr, "usage: faq-seed -business <id> -file faqs.json")
		os.Exit(2)
	}
	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	f, err := os.Open(*file)
	if err != nil {
		logger.Error("open seed file", "error", err)
		os.Exit(1)
	}
	entries, err := readEntries(f)
	_ = f.Close()
	if err != nil {
		logger.Error("read seed file", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	stores, err := bootstrap.BuildStores(ctx, cfg, nil, logger)
	if err != nil {
		logger.Error("connect stores", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	oracle, err := bootstrap.BuildOracle(ctx, cfg, logger)
	if err != nil {
		logger.Error("build embedder", "error", err)
		os.Exit(1)
	}
	defer oracle.Close()

	stored, failed := seed(ctx, oracle.Embedder, stores.FAQ, *tenant, entries, logger)
	logger.Info("faq seed finished", "business_id", *tenant, "stored", stored, "failed", failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func readEntries(r io.Reader) ([]entry, error) {
	var entries []entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode faqs: %w", err)
	}
	return entries, nil
}

// seed stores every entry, logging and counting failures instead of stopping.
func seed(ctx context.Context, embedder llm.Embedder, store faq.Store, tenantID string, entries []entry, logger *logging.Logger) (stored, failed int) {
	for i, e := range entries {
		id, err := faq.Ingest(ctx, embedder, store, faq.Document{TenantID: tenantID, Question: e.Question, Answer: e.Answer})
		if err != nil {
			logger.Error("faq not stored", "index", i, "error", err)
			failed++
			continue
		}
		logger.Debug("faq stored", "index", i, "id", id)
		stored++
	}
	return stored, failed
}
