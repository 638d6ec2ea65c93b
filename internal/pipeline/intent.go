package pipeline

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"gopherai-search/internal/ai"
)

type Intent string

const (
	IntentImage    Intent = "image"
	IntentAnalysis Intent = "analysis"
	IntentSearch   Intent = "search"
	IntentChat     Intent = "chat"
)

var (
	// only request-shaped phrasing; questions about images go to the model
	imagePattern    = regexp.MustCompile(`(?i)^\s*(please\s+)?(can you\s+|could you\s+)?(generate|create|make|render|draw|paint|sketch)\s+(me\s+)?(an?\s+|some\s+)?(image|picture|photo|drawing|illustration|painting|artwork)s?\b|^\s*(please\s+)?(can you\s+|could you\s+)?(draw|paint|sketch|illustrate)\b|^\s*(an?\s+)?(image|picture|drawing|photo)\s+of\b`)
	analysisPattern = regexp.MustCompile(`(?i)\b(plot|chart|graph|visuali[sz]e|histogram|analy[sz]e|average|mean|median|sum|total|columns?|dataset|rows?|trend|correlation)\b`)
	smallTalk       = map[string]struct{}{
		"hi": {}, "hello": {}, "hey": {}, "yo": {}, "thanks": {}, "thank you": {},
		"thx": {}, "bye": {}, "goodbye": {}, "good morning": {}, "good night": {},
		"good evening": {}, "how are you": {}, "ok": {}, "okay": {}, "cool": {},
		"nice": {}, "great": {}, "who are you": {},
	}
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	imageLead   = regexp.MustCompile(`(?i)^\s*(please\s+)?(can you\s+|could you\s+)?(generate|create|make|render|draw|paint|sketch|illustrate)\s+(me\s+)?((an?|the)\s+(image|picture|photo|drawing|illustration|painting)\s+(of\s+)?)?`)
)

// FastIntent is the deterministic keyword check run before any network
// call. ok is false when the query needs the model to decide.
func FastIntent(query string, hasDataset bool) (Intent, bool) {
	if imagePattern.MatchString(query) {
		return IntentImage, true
	}
	if hasDataset && analysisPattern.MatchString(query) {
		return IntentAnalysis, true
	}

	bare := strings.Join(strings.Fields(punctuation.ReplaceAllString(strings.ToLower(query), " ")), " ")
	if _, ok := smallTalk[bare]; ok {
		return IntentChat, true
	}
	return "", false
}

// ImagePrompt drops the leading request phrase ("draw me a ...").
func ImagePrompt(query string) string {
	prompt := strings.TrimSpace(imageLead.ReplaceAllString(query, ""))
	if prompt == "" {
		return strings.TrimSpace(query)
	}
	return prompt
}

const classifierPrompt = `You route messages for a web-search assistant.
Decide whether answering the user's message needs fresh information from a web search
(facts, news, prices, people, places, anything time-sensitive) or is casual conversation
that can be answered directly.
Reply with JSON only: {"search": true} or {"search": false}.`

type Classifier struct {
	llm    JSONCompleter
	cfg    ai.ChatConfig
	logger *zap.Logger
}

func NewClassifier(llm JSONCompleter, cfg ai.ChatConfig, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{llm: llm, cfg: cfg, logger: logger}
}

// Classify runs the keyword fast path, then asks the model only for the
// search-vs-chat decision. Any failure falls back to IntentSearch.
func (c *Classifier) Classify(ctx context.Context, query string, hasDataset bool) Intent {
	if intent, ok := FastIntent(query, hasDataset); ok {
		return intent
	}
	if c.llm == nil {
		return IntentSearch
	}

	var decision struct {
		Search *bool `json:"search"`
	}
	err := c.llm.CompleteJSON(ctx, c.cfg, []ai.ChatMessage{
		{Role: "system", Content: classifierPrompt},
		{Role: "user", Content: query},
	}, &decision)
	if err != nil {
		c.logger.Warn("intent classification failed, defaulting to search", zap.Error(err))
		return IntentSearch
	}
	if decision.Search == nil {
		c.logger.Warn("intent classification returned no decision, defaulting to search")
		return IntentSearch
	}
	if *decision.Search {
		return IntentSearch
	}
	return IntentChat
}
