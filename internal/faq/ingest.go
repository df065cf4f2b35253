package faq

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/booking-agent/internal/llm"
)

// Ingest embeds the question together with its answer and stores the
// document. Both halves are embedded so questions phrased around the answer
// still match.
func Ingest(ctx context.Context, embedder llm.Embedder, store Store, doc Document) (string, error) {
	doc.Question = strings.TrimSpace(doc.Question)
	doc.Answer = strings.TrimSpace(doc.Answer)
	if doc.TenantID == "" || doc.Question == "" || doc.Answer == "" {
		return "", errors.New("faq: tenant, question and answer are required")
	}
	vec, err := embedder.Embed(ctx, doc.Question+" "+doc.Answer)
	if err != nil {
		return "", fmt.Errorf("faq: embed document: %w", err)
	}
	return store.Insert(ctx, doc, vec)
}
