// Package captioner generates product metadata for an asset through an
// OpenAI-compatible chat completions endpoint. The collaborator is treated
// as unreliable: malformed responses and outages degrade to filename-derived
// metadata instead of failing the item.
package captioner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Metadata is the captioner's output for one asset.
type Metadata struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// Request identifies one asset to caption. DocumentExcerpt is optional
// context extracted from the deliverable (e.g. a PDF text snippet).
type Request struct {
	ImageURL         string
	DownloadFileName string
	CategoryName     string
	DocumentExcerpt  string
}

// Client calls the chat completions API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// New constructs a Client. baseURL is the API root, e.g.
// "https://api.openai.com/v1".
func New(baseURL, apiKey, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const systemPrompt = "You are a professional e-commerce product description writer. " +
	"Always return valid JSON only, no markdown or code blocks."

// Caption generates metadata for the asset. Any failure along the way
// (transport, API error, unparseable response) falls back to metadata
// derived from the filename so one flaky call cannot kill an item.
func (c *Client) Caption(ctx context.Context, req Request) (Metadata, error) {
	meta, err := c.caption(ctx, req)
	if err != nil {
		log.Printf("captioner: falling back for %s: %v", req.DownloadFileName, err)
		return Fallback(req.DownloadFileName, req.CategoryName), nil
	}
	return meta, nil
}

func (c *Client) caption(ctx context.Context, req Request) (Metadata, error) {
	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(req)},
		},
		Temperature:    0.7,
		MaxTokens:      500,
		ResponseFormat: &respFormat{Type: "json_object"},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Metadata{}, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Metadata{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Metadata{}, fmt.Errorf("call captioner: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Metadata{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Metadata{}, fmt.Errorf("captioner returned %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		return Metadata{}, fmt.Errorf("decode response: %w", err)
	}
	if len(chat.Choices) == 0 || chat.Choices[0].Message.Content == "" {
		return Metadata{}, fmt.Errorf("empty completion")
	}
	return parseContent(chat.Choices[0].Message.Content)
}

func buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("You are an expert e-commerce product description writer. ")
	b.WriteString("Generate SEO-friendly product metadata for a digital product.\n\n")
	b.WriteString("Product Details:\n")
	fmt.Fprintf(&b, "- Download File: %s\n", req.DownloadFileName)
	fmt.Fprintf(&b, "- Category: %s\n", req.CategoryName)
	fmt.Fprintf(&b, "- Image URL: %s\n", req.ImageURL)
	if req.DocumentExcerpt != "" {
		fmt.Fprintf(&b, "- Document excerpt: %s\n", truncate(req.DocumentExcerpt, 1000))
	}
	b.WriteString("\nGenerate:\n")
	b.WriteString("1. A compelling product name (max 80 characters, no special characters except - and _)\n")
	b.WriteString("2. A detailed product description (150-300 words, SEO-optimized)\n")
	b.WriteString("3. 5-10 relevant keywords (comma-separated, related to the product and category)\n\n")
	b.WriteString(`Return ONLY a valid JSON object in this exact format:` + "\n")
	b.WriteString(`{"name": "Product Name Here", "description": "Detailed description here...", "keywords": ["keyword1", "keyword2"]}` + "\n\n")
	b.WriteString("Do not include any markdown formatting or code blocks. Just the raw JSON.")
	return b.String()
}

// parseContent accepts keywords either as a JSON array or as one
// comma-joined string; models produce both.
func parseContent(content string) (Metadata, error) {
	var parsed struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Keywords    json.RawMessage `json:"keywords"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return Metadata{}, fmt.Errorf("parse metadata json: %w", err)
	}
	if strings.TrimSpace(parsed.Name) == "" {
		return Metadata{}, fmt.Errorf("metadata missing name")
	}
	meta := Metadata{
		Name:        strings.TrimSpace(parsed.Name),
		Description: strings.TrimSpace(parsed.Description),
	}
	meta.Keywords = parseKeywords(parsed.Keywords)
	return meta, nil
}

func parseKeywords(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return filterBlank(list)
	}
	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil {
		return filterBlank(strings.Split(joined, ","))
	}
	return nil
}

func filterBlank(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
