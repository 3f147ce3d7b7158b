package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const defaultSystemPrompt = "You are a professional simultaneous interpreter. " +
	"Translate the user's text faithfully and concisely. " +
	"Output only the translation, with no explanations or quotes."

// OpenAIConfig configures the OpenAI-backed translator. BaseURL allows
// pointing at any compatible endpoint.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Model        string // default gpt-4o-mini
	SystemPrompt string

	// ContextSize is how many previous request/reply exchanges are
	// replayed with each call so the model keeps terminology and
	// pronouns consistent across segments. Zero disables history.
	ContextSize int
}

// OpenAI translates via chat completions. It is the fallback backend
// for language pairs without a local model.
type OpenAI struct {
	client       openai.Client
	model        openai.ChatModel
	systemPrompt string
	contextSize  int

	mu      sync.Mutex
	history []exchange
}

// exchange is one completed translation round kept as conversational
// context for subsequent calls.
type exchange struct {
	request string
	reply   string
}

// NewOpenAI creates an OpenAI translator.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := openai.ChatModel(cfg.Model)
	if cfg.Model == "" {
		model = openai.ChatModelGPT4oMini
	}
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}

	return &OpenAI{
		client:       openai.NewClient(opts...),
		model:        model,
		systemPrompt: prompt,
		contextSize:  cfg.ContextSize,
	}
}

// Translate sends one chunk for translation.
func (o *OpenAI) Translate(ctx context.Context, text, source, target string) (string, error) {
	content := fmt.Sprintf(
		"please translate the following text from %s to %s:\n\n%s",
		source, target, text,
	)

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    o.model,
		Messages: o.messages(content),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	o.remember(content, reply)
	return reply, nil
}

// messages assembles the prompt: system instruction, the retained
// exchanges oldest first, then the current request.
func (o *OpenAI) messages(content string) []openai.ChatCompletionMessageParamUnion {
	o.mu.Lock()
	defer o.mu.Unlock()

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, 2*len(o.history)+2)
	msgs = append(msgs, openai.SystemMessage(o.systemPrompt))
	for _, ex := range o.history {
		msgs = append(msgs, openai.UserMessage(ex.request), openai.AssistantMessage(ex.reply))
	}
	return append(msgs, openai.UserMessage(content))
}

// remember records a completed exchange, dropping the oldest once the
// window is full.
func (o *OpenAI) remember(request, reply string) {
	if o.contextSize <= 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	o.history = append(o.history, exchange{request: request, reply: reply})
	if len(o.history) > o.contextSize {
		o.history = o.history[len(o.history)-o.contextSize:]
	}
}

// Reset discards the conversational history, e.g. between sessions.
func (o *OpenAI) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = nil
}

func (o *OpenAI) Close() error { return nil }
