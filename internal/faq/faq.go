// Package faq answers frequently asked questions from a tenant's knowledge
// base using vector similarity search and a cheap-tier oracle call.
package faq

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/booking-agent/internal/intent"
	"github.com/wolfman30/booking-agent/internal/llm"
	"github.com/wolfman30/booking-agent/pkg/logging"
)

const (
	DefaultThreshold = 0.7
	DefaultCount     = 3

	// NoMatchReply is sent when no FAQ is similar enough.
	NoMatchReply = "I don't have information about that. Let me connect you with a team member who can help."
	emptyReply   = "I apologize, I could not generate a response."
)

const answerPrompt = `You are a helpful assistant for a service business. Answer the customer's question using ONLY the provided FAQs. If the answer isn't in the FAQs, say you don't know.

FAQs:
%s

Instructions:
- Answer briefly and naturally
- Cite the FAQ number if relevant
- Keep response under 100 words
- Be friendly and professional`

// Document is one stored question and answer.
type Document struct {
	ID       string
	TenantID string
	Question string
	Answer   string
}

// Match is a document with its cosine similarity to the query.
type Match struct {
	Document
	Similarity float64
}

// Searcher finds the documents most similar to an embedding.
type Searcher interface {
	Search(ctx context.Context, tenantID string, embedding []float32, threshold float64, limit int) ([]Match, error)
}

// Store is a Searcher that also accepts new documents.
type Store interface {
	Searcher
	Insert(ctx context.Context, doc Document, embedding []float32) (string, error)
}

// Answer is the outcome of one FAQ lookup.
type Answer struct {
	Text    string
	Usage   llm.Usage
	Matches int
}

// Answerer embeds a question, retrieves matching FAQs and asks the oracle
// to answer from them only.
type Answerer struct {
	embedder  llm.Embedder
	search    Searcher
	oracle    llm.Oracle
	threshold float64
	count     int
	logger    *logging.Logger
}

func NewAnswerer(embedder llm.Embedder, search Searcher, oracle llm.Oracle, threshold float64, count int, logger *logging.Logger) *Answerer {
	if embedder == nil || search == nil || oracle == nil {
		panic("faq: embedder, searcher and oracle are required")
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if count <= 0 {
		count = DefaultCount
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Answerer{embedder: embedder, search: search, oracle: oracle, threshold: threshold, count: count, logger: logger}
}

func (a *Answerer) Answer(ctx context.Context, tenantID, question string) (Answer, error) {
	vec, err := a.embedder.Embed(ctx, question)
	if err != nil {
		return Answer{}, fmt.Errorf("faq: embed question: %w", err)
	}
	matches, err := a.search.Search(ctx, tenantID, vec, a.threshold, a.count)
	if err != nil {
		return Answer{}, fmt.Errorf("faq: search: %w", err)
	}
	if len(matches) == 0 {
		a.logger.Debug("no faq match", "tenant_id", tenantID)
		return Answer{Text: NoMatchReply}, nil
	}

	var b strings.Builder
	for i, m := range matches {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] Q: %s\nA: %s", i+1, m.Question, m.Answer)
	}
	resp, err := a.oracle.Chat(ctx, llm.Request{
		Tier:        intent.TierCheap,
		System:      fmt.Sprintf(answerPrompt, b.String()),
		History:     []llm.Turn{{Role: llm.RoleUser, Text: question}},
		MaxTokens:   150,
		Temperature: 0.7,
	})
	out := Answer{Usage: resp.Usage, Matches: len(matches)}
	if err != nil {
		return out, fmt.Errorf("faq: answer: %w", err)
	}
	out.Text = strings.TrimSpace(resp.Text)
	if out.Text == "" {
		out.Text = emptyReply
	}
	return out, nil
}
