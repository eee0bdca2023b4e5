package embedding

import (
	"context"
	"fmt"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const maxBatchSize = 100

// Client calls the external embedding model
type Client struct {
	client  *genai.Client
	model   string
	backoff func() backoff.BackOff
}

// NewClient creates an embedding client
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("no api key")
	}
	if model == "" {
		model = "text-embedding-004"
	}
	gc, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("can't init genai client: %w", err)
	}
	return &Client{client: gc, model: model, backoff: newSimpleBackoff}, nil
}

// EmbedText embeds a single text
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	goapp.Log.Debug().Str("model", c.model).Int("len", len(text)).Msg("embed")
	em := c.client.EmbeddingModel(c.model)
	res, err := goapp.InvokeWithBackoff(ctx, func() (*genai.EmbedContentResponse, bool, error) {
		r, err := em.EmbedContent(ctx, genai.Text(text))
		return r, err != nil, err
	}, c.backoff())
	if err != nil {
		return nil, fmt.Errorf("can't embed: %w", err)
	}
	if res.Embedding == nil {
		return nil, fmt.Errorf("no embedding in response")
	}
	return res.Embedding.Values, nil
}

// EmbedTexts embeds many texts preserving input order.
// Requests are capped at the model's batch limit.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) == 1 {
		v, err := c.EmbedText(ctx, texts[0])
		if err != nil {
			return nil, err
		}
		return [][]float32{v}, nil
	}
	em := c.client.EmbeddingModel(c.model)
	res := make([][]float32, 0, len(texts))
	for _, batch := range splitBatches(texts, maxBatchSize) {
		goapp.Log.Debug().Str("model", c.model).Int("size", len(batch)).Msg("embed batch")
		b := em.NewBatch()
		for _, t := range batch {
			b.AddContent(genai.Text(t))
		}
		resp, err := goapp.InvokeWithBackoff(ctx, func() (*genai.BatchEmbedContentsResponse, bool, error) {
			r, err := em.BatchEmbedContents(ctx, b)
			return r, err != nil, err
		}, c.backoff())
		if err != nil {
			return nil, fmt.Errorf("can't embed batch: %w", err)
		}
		if len(resp.Embeddings) != len(batch) {
			return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Embeddings), len(batch))
		}
		for _, e := range resp.Embeddings {
			res = append(res, e.Values)
		}
	}
	return res, nil
}

// Close releases the underlying client
func (c *Client) Close() error {
	return c.client.Close()
}

func splitBatches(texts []string, size int) [][]string {
	var res [][]string
	for len(texts) > size {
		res = append(res, texts[:size])
		texts = texts[size:]
	}
	if len(texts) > 0 {
		res = append(res, texts)
	}
	return res
}

func newSimpleBackoff() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
}
