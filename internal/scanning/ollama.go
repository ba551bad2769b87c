package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Ollama implements Scanner against a local Ollama server, giving a
// credential-free option for vision models like llava or qwen2-vl.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates an Ollama-backed Scanner.
func NewOllama(baseURL, modelName string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}
	return &Ollama{
		baseURL: baseURL,
		model:   modelName,
		// Local vision models are slow; the per-attempt context still bounds us.
		client: &http.Client{Timeout: 120 * time.Second},
	}, nil
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Extract sends the receipt image to Ollama and returns the raw extracted
// document, retrying transient failures with bounded backoff.
func (o *Ollama) Extract(ctx context.Context, imageData []byte, contentType string) (RawDocument, error) {
	pngData, err := prepareImage(imageData, contentType)
	if err != nil {
		return nil, invalidFormatErr(err)
	}
	imageBase64 := base64.StdEncoding.EncodeToString(pngData)

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading purchase receipts and extracting every line item accurately.",
			},
			{
				Role:    "user",
				Content: receiptScanPrompt,
				Images:  []string{imageBase64},
			},
		},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, invalidFormatErr(fmt.Errorf("marshaling request: %w", err))
	}

	return withRetry(ctx, func(ctx context.Context) (RawDocument, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(jsonData))
		if err != nil {
			return nil, transientErr(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := o.client.Do(req)
		if err != nil {
			return nil, transientErr(fmt.Errorf("calling ollama API: %w", err))
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, quotaErr(fmt.Errorf("ollama API rate limited"))
		case resp.StatusCode >= 500:
			body, _ := io.ReadAll(resp.Body)
			return nil, transientErr(fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, body))
		case resp.StatusCode != http.StatusOK:
			body, _ := io.ReadAll(resp.Body)
			return nil, invalidFormatErr(fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, body))
		}

		var chatResp ollamaChatResponse
		if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
			return nil, invalidFormatErr(fmt.Errorf("decoding response: %w", err))
		}
		return extractDocument(chatResp.Message.Content)
	})
}

// Close is a no-op for the HTTP client.
func (o *Ollama) Close() error { return nil }
