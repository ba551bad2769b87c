package scanning

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements Scanner using Google Gemini vision models.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a Gemini-backed Scanner.
func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	var temp float32 = 0.1
	model.Temperature = &temp

	return &Gemini{client: client, model: model}, nil
}

// Extract sends the receipt image to Gemini and returns the raw extracted
// document. Transient service errors are retried with bounded backoff;
// quota exhaustion and malformed responses surface immediately.
func (g *Gemini) Extract(ctx context.Context, imageData []byte, contentType string) (RawDocument, error) {
	pngData, err := prepareImage(imageData, contentType)
	if err != nil {
		return nil, invalidFormatErr(err)
	}

	parts := []genai.Part{
		genai.ImageData("png", pngData),
		genai.Text(receiptScanPrompt),
	}

	return withRetry(ctx, func(ctx context.Context) (RawDocument, error) {
		resp, err := g.model.GenerateContent(ctx, parts...)
		if err != nil {
			return nil, classifyServiceError(fmt.Errorf("generating content: %w", err))
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
			return nil, invalidFormatErr(fmt.Errorf("empty response from gemini"))
		}

		var sb strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		return extractDocument(sb.String())
	})
}

// Close closes the underlying client.
func (g *Gemini) Close() error { return g.client.Close() }
