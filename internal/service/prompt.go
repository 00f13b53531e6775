package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"supportbot/backend/internal/knowledge"
	"supportbot/backend/internal/models"
)

const (
	defaultPersona  = "Be friendly, concise and helpful. If you do not know the answer, say so and offer to connect the visitor with a human."
	defaultLanguage = "English"
	charsPerToken   = 4
)

// Budget caps prompt sections in approximate tokens. Zero means unbounded.
type Budget struct {
	MaxContextTokens int
	MaxHistoryTokens int
}

// PromptComposer builds the ordered messages sent to the completion provider
type PromptComposer struct {
	budget Budget
}

func NewPromptComposer(budget Budget) *PromptComposer {
	return &PromptComposer{budget: budget}
}

// Compose returns one system message, the history in order, then the new
// user message. The knowledge block is only present when chunks survive the
// context budget.
func (p *PromptComposer) Compose(bot *models.Bot, chunks []models.ScoredChunk, history []models.ChatMessage, userMessage string) []models.ChatMessage {
	contextText := knowledge.JoinChunks(p.fitChunks(chunks))
	history = p.fitHistory(history)

	out := make([]models.ChatMessage, 0, len(history)+2)
	out = append(out, models.ChatMessage{Role: models.RoleSystem, Content: systemPrompt(bot, contextText)})
	out = append(out, history...)
	out = append(out, models.ChatMessage{Role: models.RoleUser, Content: userMessage})
	return out
}

func systemPrompt(bot *models.Bot, contextText string) string {
	var b strings.Builder

	name := bot.Name
	if name == "" {
		name = "a support assistant"
	}
	persona := strings.TrimSpace(bot.Persona)
	if persona == "" {
		persona = defaultPersona
	}
	language := bot.Language
	if language == "" {
		language = defaultLanguage
	}

	fmt.Fprintf(&b, "You are %s, a customer support assistant.\n%s\n", name, persona)
	fmt.Fprintf(&b, "Always reply in %s.", language)

	if contextText != "" {
		b.WriteString("\n\nUse the following information from the knowledge base to answer the question. ")
		b.WriteString("Prefer it over general knowledge whenever it is relevant. ")
		b.WriteString("If it does not cover the question, answer from general knowledge.\n\n")
		b.WriteString("Knowledge base:\n")
		b.WriteString(contextText)
	}
	return b.String()
}

// EstimateTokens approximates the token count of s
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + charsPerToken - 1) / charsPerToken
}

// fitChunks keeps the highest ranked chunks that fit the context budget
func (p *PromptComposer) fitChunks(chunks []models.ScoredChunk) []models.ScoredChunk {
	if p.budget.MaxContextTokens <= 0 {
		return chunks
	}
	used := 0
	for i, c := range chunks {
		used += EstimateTokens(c.Content)
		if used > p.budget.MaxContextTokens {
			return chunks[:i]
		}
	}
	return chunks
}

// fitHistory keeps the most recent turns that fit the history budget
func (p *PromptComposer) fitHistory(history []models.ChatMessage) []models.ChatMessage {
	if p.budget.MaxHistoryTokens <= 0 {
		return history
	}
	used := 0
	for i := len(history) - 1; i >= 0; i-- {
		used += EstimateTokens(history[i].Content)
		if used > p.budget.MaxHistoryTokens {
			return history[i+1:]
		}
	}
	return history
}

var localeLanguages = map[string]string{
	"en": "English",
	"de": "German",
	"fr": "French",
	"es": "Spanish",
	"it": "Italian",
	"nl": "Dutch",
	"pt": "Portuguese",
	"pl": "Polish",
	"sv": "Swedish",
	"da": "Danish",
	"tr": "Turkish",
	"ja": "Japanese",
}

// LanguageForLocale maps a locale such as "de-AT" to a reply language.
// Unknown locales reply in English.
func LanguageForLocale(locale string) string {
	tag := strings.ToLower(strings.TrimSpace(locale))
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	if lang, ok := localeLanguages[tag]; ok {
		return lang
	}
	return defaultLanguage
}
