package llm

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// FallbackSummary is returned whenever summary generation fails. A transfer is
// never blocked by summarization failure.
const FallbackSummary = "Failed to generate conversation summary. Transfer will proceed with basic context."

// maxSummaryRunes bounds summary length for downstream storage and display.
const maxSummaryRunes = 2000

const summarySystemPrompt = "You are a helpful assistant that creates concise call summaries for warm transfers between customer service agents."

// Completer is the LLM collaborator contract the summarizer consumes.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// SummaryContext biases the summary's framing with who the caller is.
type SummaryContext struct {
	CallerType    string
	CallerContext string
}

// Summary is the generated text plus whether the fallback was used.
type Summary struct {
	Text     string
	Degraded bool
}

// Summarizer wraps the LLM collaborator with timeout, fallback, and length bounding.
type Summarizer struct {
	llm     Completer
	timeout time.Duration
}

func NewSummarizer(llm Completer, timeout time.Duration) *Summarizer {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Summarizer{llm: llm, timeout: timeout}
}

// Summarize produces a short warm-transfer briefing from the transcript text.
// On any collaborator error or timeout it returns the fixed fallback with
// Degraded set, never an error.
func (s *Summarizer) Summarize(ctx context.Context, transcriptText string, sctx SummaryContext) Summary {
	if strings.TrimSpace(transcriptText) == "" {
		return Summary{Text: FallbackSummary, Degraded: true}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, err := s.llm.Complete(ctx, summarySystemPrompt, buildSummaryPrompt(transcriptText, sctx))
	if err != nil || strings.TrimSpace(text) == "" {
		log.Printf("summary generation failed, using fallback: %v", err)
		return Summary{Text: FallbackSummary, Degraded: true}
	}
	return Summary{Text: truncate(strings.TrimSpace(text), maxSummaryRunes)}
}

func buildSummaryPrompt(transcriptText string, sctx SummaryContext) string {
	var b strings.Builder
	b.WriteString("Please summarize the following customer service call conversation into a very short and clear paragraph that an agent can quickly read out loud to another agent for a warm transfer. Focus on the customer's issue and what has been done so far. Keep it under 3 sentences and make it conversational")
	if sctx.CallerType != "" {
		fmt.Fprintf(&b, ". The caller is a %s", sctx.CallerType)
	}
	if sctx.CallerContext != "" {
		fmt.Fprintf(&b, ". Known caller context: %s", sctx.CallerContext)
	}
	b.WriteString(":\n\n")
	b.WriteString(transcriptText)
	return b.String()
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
