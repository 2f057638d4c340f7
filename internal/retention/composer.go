package retention

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/mentiq/dashboard-api/internal/healthscore"
)

// Composer drafts retention emails from a computed health-score context.
// This is the downstream consumer of the engine's llmContext payload; the
// engine itself never talks to a model.
type Composer struct {
	client *openai.Client
	model  string
}

// Config holds OpenAI configuration.
type Config struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// EmailDraft is a drafted retention email.
type EmailDraft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func NewComposer(cfg Config) *Composer {
	model := cfg.Model
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}
	return &Composer{
		client: openai.NewClient(cfg.APIKey),
		model:  model,
	}
}

const systemPrompt = `You are a customer success manager writing a short retention email.
Write a subject line and a body. Start the reply with "Subject: " followed by
the subject, then a blank line, then the body. Be specific about the account's
situation, warm in tone, and end with one clear call to action.`

// ComposeEmail renders a retention email draft for the given context.
func (c *Composer) ComposeEmail(ctx context.Context, llm healthscore.LLMContext) (*EmailDraft, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.7,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(llm)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to draft retention email: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("model returned no choices")
	}

	return parseDraft(resp.Choices[0].Message.Content), nil
}

// buildPrompt flattens the llmContext payload into the user message. The
// payload is embedded verbatim; no re-computation happens here.
func buildPrompt(llm healthscore.LLMContext) string {
	var b strings.Builder
	b.WriteString("Account summary: ")
	b.WriteString(llm.Summary)
	b.WriteString("\n")

	if len(llm.RiskFactors) > 0 {
		b.WriteString("Risk factors:\n")
		for _, r := range llm.RiskFactors {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	if len(llm.Opportunities) > 0 {
		b.WriteString("Opportunities:\n")
		for _, o := range llm.Opportunities {
			fmt.Fprintf(&b, "- %s\n", o)
		}
	}
	if len(llm.Metrics) > 0 {
		b.WriteString("Metrics snapshot:\n")
		for _, k := range sortedKeys(llm.Metrics) {
			fmt.Fprintf(&b, "- %s: %g\n", k, llm.Metrics[k])
		}
	}
	return b.String()
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// parseDraft splits the model reply into subject and body, falling back to
// a generic subject if the reply ignores the requested format.
func parseDraft(content string) *EmailDraft {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "Subject:") {
		parts := strings.SplitN(content, "\n", 2)
		subject := strings.TrimSpace(strings.TrimPrefix(parts[0], "Subject:"))
		body := ""
		if len(parts) == 2 {
			body = strings.TrimSpace(parts[1])
		}
		return &EmailDraft{Subject: subject, Body: body}
	}
	return &EmailDraft{Subject: "Checking in on your account", Body: content}
}
