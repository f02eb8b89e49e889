// Package summarize wraps the speech-to-text and text-generation calls the
// ingestion pipelines make.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	TranscriptBudget = 12000
	DocumentBudget   = 15000
	// FallbackSummaryLen bounds the raw model text kept when its answer is
	// not parseable JSON.
	FallbackSummaryLen = 1000
	MaxKeywords        = 6
)

// Transcriber turns an audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// ChatClient runs one system+user chat completion.
type ChatClient interface {
	ChatCompletion(ctx context.Context, system, user string) (string, error)
}

type Service struct {
	stt Transcriber
	llm ChatClient
}

func New(stt Transcriber, llm ChatClient) *Service {
	return &Service{stt: stt, llm: llm}
}

// Transcribe returns the transcript of the audio at path.
func (s *Service) Transcribe(ctx context.Context, audioPath string) (string, error) {
	text, err := s.stt.Transcribe(ctx, audioPath)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return strings.TrimSpace(text), nil
}

type AdSummary struct {
	Title   *string
	Summary string
}

const adSystemPrompt = `You review transcripts of short video advertisements for a marketing team.
Reply with strict JSON only, no prose and no code fences, shaped exactly as:
{"title": "<short descriptive title, max 80 characters>", "summary": "<2-4 sentences: offer, hook, audience, call to action>"}`

// SummarizeAd asks for a title and summary of an ad transcript. An answer
// that is not the requested JSON degrades to a nil title and the raw text as
// summary; only transport failures are errors.
func (s *Service) SummarizeAd(ctx context.Context, transcript, sourceURL string) (AdSummary, error) {
	body := Truncate(transcript, TranscriptBudget)
	if strings.TrimSpace(body) == "" {
		body = "(no speech detected)"
	}
	user := fmt.Sprintf("Source URL: %s\n\nTranscript:\n%s", sourceURL, body)

	raw, err := s.llm.ChatCompletion(ctx, adSystemPrompt, user)
	if err != nil {
		return AdSummary{}, fmt.Errorf("summarize ad: %w", err)
	}

	fields, ok := parseReply(raw)
	if !ok {
		return AdSummary{Summary: fallbackSummary(raw)}, nil
	}
	return AdSummary{
		Title:   optionalString(fields["title"]),
		Summary: asString(fields["summary"]),
	}, nil
}

type DocumentSummary struct {
	Title    *string
	Summary  string
	Keywords []string
}

const documentSystemPrompt = `You summarize research documents (briefs, reviews, interviews, reports) for a marketing team.
Reply with strict JSON only, no prose and no code fences, shaped exactly as:
{"title": "<short descriptive title>", "summary": "<3-5 sentence summary>", "keywords": ["<3 to 6 short keywords>"]}`

// SummarizeDocument asks for a title, summary and 3-6 keywords. Degrades like
// SummarizeAd, with no keywords.
func (s *Service) SummarizeDocument(ctx context.Context, text, filename string) (DocumentSummary, error) {
	user := fmt.Sprintf("File name: %s\n\nDocument text:\n%s", filename, Truncate(text, DocumentBudget))

	raw, err := s.llm.ChatCompletion(ctx, documentSystemPrompt, user)
	if err != nil {
		return DocumentSummary{}, fmt.Errorf("summarize document: %w", err)
	}

	fields, ok := parseReply(raw)
	if !ok {
		return DocumentSummary{
			Summary:  fallbackSummary(raw),
			Keywords: []string{},
		}, nil
	}
	return DocumentSummary{
		Title:    optionalString(fields["title"]),
		Summary:  asString(fields["summary"]),
		Keywords: cleanKeywords(keywordList(fields["keywords"])),
	}, nil
}

// parseReply decodes the model's JSON object field by field, so one
// mistyped field does not discard the others. A reply that is not an object,
// or that has no summary, is not usable.
func parseReply(raw string) (map[string]any, bool) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(StripCodeFence(raw)), &fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, asString(fields["summary"]) != ""
}

func fallbackSummary(raw string) string {
	return Truncate(strings.TrimSpace(raw), FallbackSummaryLen)
}

// keywordList accepts the requested array or a comma separated string.
func keywordList(v any) []any {
	switch kw := v.(type) {
	case []any:
		return kw
	case string:
		parts := strings.FieldsFunc(kw, func(r rune) bool {
			return r == ',' || r == ';' || r == '\n'
		})
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out
	}
	return nil
}

// StripCodeFence removes a surrounding ``` or ```json fence.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(strings.TrimSpace(s), "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Truncate returns at most n characters of s, NFC-normalized first so a
// character is not cut away from its combining marks.
func Truncate(s string, n int) string {
	s = norm.NFC.String(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func asString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func optionalString(v any) *string {
	s := asString(v)
	if s == "" {
		return nil
	}
	return &s
}

func cleanKeywords(in []any) []string {
	out := make([]string, 0, MaxKeywords)
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		kw := asString(v)
		if kw == "" {
			continue
		}
		key := strings.ToLower(kw)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, kw)
		if len(out) == MaxKeywords {
			break
		}
	}
	return out
}
