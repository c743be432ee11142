// Package workflow decomposes complex prompts into independently cacheable
// sub-tasks. Each step carries a deterministic composite cache key so that
// semantically equivalent sub-tasks across different top-level prompts
// collapse onto the same intermediate cache entry.
package workflow

import (
	"crypto/md5" //nolint:gosec // cache key derivation, not security
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// StepType classifies a workflow step.
type StepType string

const (
	StepSummarize StepType = "summarize"
	StepExtract   StepType = "extract"
	StepClassify  StepType = "classify"
	StepAnswer    StepType = "answer"
)

// Step is one cacheable sub-unit of a decomposed prompt. Result is filled by
// either an intermediate cache hit or a fresh execution; the step itself is
// discarded once the response is assembled.
type Step struct {
	ID         string   `json:"step_id"`
	Type       StepType `json:"step_type"`
	Intent     string   `json:"intent"`
	DocumentID string   `json:"document_id,omitempty"`
	InputText  string   `json:"input_text"`
	CacheKey   string   `json:"cache_key"`
	Result     string   `json:"result,omitempty"`
}

// Options configures a single decomposition call.
type Options struct {
	// DocumentID is an explicit document identifier. When set it wins over
	// the identifier derived from the prompt hash.
	DocumentID string

	// TaskType maps to the step type of single-step decompositions.
	// Unknown values fall back to the answer type.
	TaskType string
}

// Decomposer splits prompts into ordered step lists.
type Decomposer struct {
	maxSteps int
}

// Config holds configuration for the Decomposer.
type Config struct {
	MaxSteps int // Maximum steps per prompt (default: 10)
}

// NewDecomposer creates a Decomposer.
func NewDecomposer(cfg Config) *Decomposer {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 10
	}
	return &Decomposer{maxSteps: cfg.MaxSteps}
}

var (
	comparisonKeywords = regexp.MustCompile(`(?i)\b(compare|difference between|vs|versus|contrast)\b|(?i)\bbetter\b.*\bor\b`)

	// Subject extraction patterns, tried in order. Each must capture exactly
	// two subjects.
	comparisonSubjects = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bcompare\s+(.+?)\s+(?:and|with|to|vs\.?|versus)\s+(.+)`),
		regexp.MustCompile(`(?i)\bdifference between\s+(.+?)\s+and\s+(.+)`),
		regexp.MustCompile(`(?i)\bcontrast\s+(.+?)\s+(?:and|with)\s+(.+)`),
		regexp.MustCompile(`(?i)\b(?:is|are|which is)\s+(.+?)\s+better\s+(?:than|or)\s+(.+)`),
		regexp.MustCompile(`(?i)(.+?)\s+(?:vs\.?|versus)\s+(.+)`),
	}

	numberedMarker = regexp.MustCompile(`(?m)(?:^|\s)\d+[.)]\s+`)

	documentKeywords = regexp.MustCompile(`(?i)\b(document|article|paper|text|passage|section|paragraph)\b`)
	documentPhrases  = regexp.MustCompile(`(?i)\b(based on|according to|from the|in the)\b`)

	sentenceEnd = regexp.MustCompile(`[.!?]`)
)

// Decompose splits a prompt into an ordered step list. The result is empty
// iff the prompt is empty or whitespace-only. Decision order: comparison,
// multi-part, document reference, single default step. All branches truncate
// to the configured maximum step count.
func (d *Decomposer) Decompose(prompt string, opts Options) []Step {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return []Step{}
	}

	var steps []Step
	switch {
	case comparisonKeywords.MatchString(trimmed):
		steps = d.decomposeComparison(trimmed, opts)
	default:
		if parts := splitMultiPart(trimmed); len(parts) > 1 {
			steps = d.decomposeMultiPart(parts, opts)
		} else if opts.DocumentID != "" || documentKeywords.MatchString(trimmed) || documentPhrases.MatchString(trimmed) {
			steps = d.decomposeDocument(trimmed, opts)
		} else {
			steps = []Step{d.newStep(1, stepTypeForTask(opts.TaskType), trimmed, opts.DocumentID)}
		}
	}

	if len(steps) > d.maxSteps {
		steps = steps[:d.maxSteps]
	}
	return steps
}

// decomposeComparison emits summarize(A), summarize(B), answer(full prompt).
// When the two subjects cannot be extracted it degrades to a single answer
// step over the whole prompt.
func (d *Decomposer) decomposeComparison(prompt string, opts Options) []Step {
	a, b, ok := extractComparisonSubjects(prompt)
	if !ok {
		return []Step{d.newStep(1, StepAnswer, prompt, opts.DocumentID)}
	}

	return []Step{
		d.newStep(1, StepSummarize, a, opts.DocumentID),
		d.newStep(2, StepSummarize, b, opts.DocumentID),
		d.newStep(3, StepAnswer, prompt, opts.DocumentID),
	}
}

func (d *Decomposer) decomposeMultiPart(parts []string, opts Options) []Step {
	steps := make([]Step, 0, len(parts))
	for i, part := range parts {
		steps = append(steps, d.newStep(i+1, StepAnswer, part, opts.DocumentID))
	}
	return steps
}

// decomposeDocument emits a summarize step followed by an answer step, both
// scoped to the same document identifier so that invalidation by document
// removes them together.
func (d *Decomposer) decomposeDocument(prompt string, opts Options) []Step {
	docID := opts.DocumentID
	if docID == "" {
		docID = DeriveDocumentID(prompt)
	}

	return []Step{
		d.newStep(1, StepSummarize, prompt, docID),
		d.newStep(2, StepAnswer, prompt, docID),
	}
}

func (d *Decomposer) newStep(n int, typ StepType, input, docID string) Step {
	intent := deriveIntent(input)
	return Step{
		ID:         fmt.Sprintf("step_%d", n),
		Type:       typ,
		Intent:     intent,
		DocumentID: docID,
		InputText:  input,
		CacheKey:   CacheKey(docID, typ, intent),
	}
}

// CacheKey builds the deterministic composite key for an intermediate cache
// entry: "{document_id|none}:{step_type}:{first8hex(md5(intent))}".
func CacheKey(documentID string, typ StepType, intent string) string {
	doc := documentID
	if doc == "" {
		doc = "none"
	}
	sum := md5.Sum([]byte(intent)) //nolint:gosec // cache key derivation
	return fmt.Sprintf("%s:%s:%s", doc, typ, hex.EncodeToString(sum[:])[:8])
}

// DeriveDocumentID returns the identifier used for prompts that reference a
// document without naming one: the first 12 hex chars of md5(prompt).
func DeriveDocumentID(prompt string) string {
	sum := md5.Sum([]byte(prompt)) //nolint:gosec // identifier derivation
	return hex.EncodeToString(sum[:])[:12]
}

// deriveIntent returns the first sentence of the text, or the first 80
// characters with an ellipsis when the text has no early sentence boundary.
func deriveIntent(text string) string {
	text = strings.TrimSpace(text)
	if loc := sentenceEnd.FindStringIndex(text); loc != nil {
		sentence := strings.TrimSpace(text[:loc[0]])
		if sentence != "" {
			return sentence
		}
	}
	if len(text) > 80 {
		return text[:80] + "..."
	}
	return text
}

// splitMultiPart splits a prompt on numbered markers ("1." / "2)") first and,
// failing that, on question marks when more than one question is present.
// Returns nil when the prompt is not multi-part.
func splitMultiPart(prompt string) []string {
	if numberedMarker.MatchString(prompt) {
		raw := numberedMarker.Split(prompt, -1)
		parts := make([]string, 0, len(raw))
		for _, p := range raw {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if len(parts) > 1 {
			return parts
		}
	}

	if strings.Count(prompt, "?") > 1 {
		raw := strings.Split(prompt, "?")
		parts := make([]string, 0, len(raw))
		for _, p := range raw {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p+"?")
			}
		}
		if len(parts) > 1 {
			return parts
		}
	}

	return nil
}

func extractComparisonSubjects(prompt string) (string, string, bool) {
	for _, re := range comparisonSubjects {
		m := re.FindStringSubmatch(prompt)
		if m == nil {
			continue
		}
		a := cleanSubject(m[1])
		b := cleanSubject(m[2])
		if a != "" && b != "" {
			return a, b, true
		}
	}
	return "", "", false
}

func cleanSubject(s string) string {
	return strings.Trim(strings.TrimSpace(s), ".!?,;:")
}

// stepTypeForTask maps a caller-supplied task type to a step type. Unknown
// task types fall back to answer rather than failing.
func stepTypeForTask(taskType string) StepType {
	switch strings.ToLower(strings.TrimSpace(taskType)) {
	case "summarize", "summarization":
		return StepSummarize
	case "extract", "extraction":
		return StepExtract
	case "classify", "classification":
		return StepClassify
	case "answer", "qa", "question_answering":
		return StepAnswer
	default:
		return StepAnswer
	}
}
