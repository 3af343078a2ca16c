package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/citizenvoice/citizenvoice-api/config"
)

const systemPrompt = "You are a helpful assistant that generates civic issue reports. Always respond with valid JSON only."

// IssuePrompt is what the text generator is told about a classified photo
type IssuePrompt struct {
	Category   string
	Confidence float64
	Department string
	Priority   string
}

// GeneratedText is the parsed model output
type GeneratedText struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// TextGenClient calls an OpenAI compatible chat completions endpoint
type TextGenClient struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

// NewTextGenClient builds a client bounded by cfg.Timeout
func NewTextGenClient(cfg config.TextGenConfig) *TextGenClient {
	return &TextGenClient{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func buildPrompt(p IssuePrompt) string {
	return fmt.Sprintf(`You are an AI assistant helping citizens report civic issues to their local government.

Based on an image classification, the following issue was detected:
- Category: %s
- Confidence: %.0f%%
- Assigned Department: %s
- Priority Level: %s

Generate a concise and clear issue report with:
1. A short, descriptive title (max 60 characters) that a citizen would use to report this issue
2. A detailed description (2-3 sentences) explaining the issue and its potential impact on the community

Respond in JSON format only:
{"title": "...", "description": "..."}`, p.Category, p.Confidence, p.Department, p.Priority)
}

// Generate asks the model for an issue title and description
func (c *TextGenClient) Generate(ctx context.Context, p IssuePrompt) (*GeneratedText, error) {
	if c.apiKey == "" {
		return nil, unavailable("textgen", errors.New("no api key configured"))
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(p)},
		},
		Temperature: 0.7,
		MaxTokens:   200,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, unavailable("textgen", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, unavailable("textgen", fmt.Errorf("status %d", resp.StatusCode))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, unavailable("textgen", fmt.Errorf("decode response: %w", err))
	}
	if len(cr.Choices) == 0 {
		return nil, unavailable("textgen", errors.New("no choices returned"))
	}

	text, err := ParseGeneratedText(cr.Choices[0].Message.Content)
	if err != nil {
		return nil, unavailable("textgen", err)
	}
	return text, nil
}

// ParseGeneratedText reads the JSON object out of a model reply, tolerating
// a markdown code fence around it.
func ParseGeneratedText(content string) (*GeneratedText, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var out GeneratedText
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &out); err != nil {
		return nil, fmt.Errorf("parse model output: %w", err)
	}
	if strings.TrimSpace(out.Title) == "" || strings.TrimSpace(out.Description) == "" {
		return nil, errors.New("model output missing title or description")
	}
	return &out, nil
}
