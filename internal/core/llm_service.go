package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	"gwi.com/chattyagent/internal/store"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-3.5-turbo"
	DefaultGeminiModel   = "gemini-1.5-flash-latest"

	completionMaxTokens   = 1000
	completionTemperature = 0.7
)

// PromptMessage is one entry of a completion request: role and content only.
type PromptMessage struct {
	Role    store.Role `json:"role"`
	Content string     `json:"content"`
}

// Gateway turns a prompt into generated assistant text. The first entry of
// the prompt is the system message.
type Gateway interface {
	Complete(ctx context.Context, prompt []PromptMessage) (string, error)
}

var errNoCompletion = errors.New("completion response has no content")

// unconfiguredGateway fails every call; used when the provider has no key.
type unconfiguredGateway struct {
	provider string
}

func NewUnconfiguredGateway(provider string) Gateway {
	return unconfiguredGateway{provider: provider}
}

func (g unconfiguredGateway) Complete(context.Context, []PromptMessage) (string, error) {
	return "", fmt.Errorf("%s api key not configured", g.provider)
}

// OpenAIGateway talks to an OpenAI compatible /chat/completions endpoint.
type OpenAIGateway struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewOpenAIGateway(apiKey, baseURL, model string, timeout time.Duration) *OpenAIGateway {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIGateway{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chatCompletionRequest struct {
	Model       string          `json:"model"`
	Messages    []PromptMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (g *OpenAIGateway) Complete(ctx context.Context, prompt []PromptMessage) (string, error) {
	if g.apiKey == "" {
		return "", errors.New("openai api key not configured")
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:       g.model,
		Messages:    prompt,
		MaxTokens:   completionMaxTokens,
		Temperature: completionTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create completion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("completion request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode completion response: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", errNoCompletion
	}
	return out.Choices[0].Message.Content, nil
}

// GeminiGateway sends the prompt as a Gemini chat session: the system
// message becomes the system instruction, everything up to the last entry
// is history, and the last entry is sent.
type GeminiGateway struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

func NewGeminiGateway(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiGateway, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiGateway{client: client, model: model, timeout: timeout}, nil
}

func (g *GeminiGateway) Close() error {
	return g.client.Close()
}

func geminiRole(r store.Role) string {
	if r == store.RoleAssistant {
		return "model"
	}
	return "user"
}

func (g *GeminiGateway) Complete(ctx context.Context, prompt []PromptMessage) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	model := g.client.GenerativeModel(g.model)
	maxTokens := int32(completionMaxTokens)
	temp := float32(completionTemperature)
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temp,
	}

	turns := prompt
	if len(turns) > 0 && turns[0].Role == store.RoleSystem {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(turns[0].Content)},
		}
		turns = turns[1:]
	}
	if len(turns) == 0 {
		return "", fmt.Errorf("prompt has no messages to send")
	}

	last := turns[len(turns)-1]
	if last.Role != store.RoleUser {
		return "", fmt.Errorf("last prompt message is from %q, not user", last.Role)
	}

	session := model.StartChat()
	for _, m := range turns[:len(turns)-1] {
		session.History = append(session.History, &genai.Content{
			Role:  geminiRole(m.Role),
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}

	resp, err := session.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errNoCompletion
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", errNoCompletion
	}
	return text.String(), nil
}
