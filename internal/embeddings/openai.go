package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"ltmc/internal/apperrors"
	"ltmc/internal/chunking"
	"ltmc/internal/config"
	"ltmc/internal/logging"
)

// OpenAIEmbedder calls the OpenAI embeddings API with an LRU result
// cache and a requests-per-minute limiter in front of it.
type OpenAIEmbedder struct {
	apiKey    string
	baseURL   string
	model     string
	dimension int
	client    *http.Client
	cache     *lru.Cache[string, []float32]
	limiter   *rateLimiter
	logger    logging.Logger
}

// NewOpenAIEmbedder validates the configuration and builds the client.
func NewOpenAIEmbedder(cfg config.EmbeddingConfig, logger logging.Logger) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, apperrors.New(apperrors.ErrorCodeConfig, "openai embedding provider requires an API key", nil)
	}
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = 1000
	}
	cache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorCodeConfig, "building embedding cache", err)
	}
	return &OpenAIEmbedder{
		apiKey:    cfg.APIKey,
		baseURL:   cfg.BaseURL,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		client:    &http.Client{Timeout: time.Duration(cfg.TimeoutS) * time.Second},
		cache:     cache,
		limiter:   newRateLimiter(cfg.RateRPM),
		logger:    logger.WithComponent("embeddings"),
	}, nil
}

// Embed returns the vector for one text, served from cache when the
// exact content was embedded before.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := chunking.ContentHash(text)
	if vec, ok := e.cache.Get(key); ok {
		return vec, nil
	}
	vecs, err := e.callAPI(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, vecs[0])
	return vecs[0], nil
}

// EmbedBatch embeds many texts in one API call, filling gaps from the
// cache first.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingAt []int
	for i, text := range texts {
		if vec, ok := e.cache.Get(chunking.ContentHash(text)); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, text)
		missingAt = append(missingAt, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := e.callAPI(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, vec := range vecs {
		i := missingAt[j]
		out[i] = vec
		e.cache.Add(chunking.ContentHash(texts[i]), vec)
	}
	return out, nil
}

// Dimension reports the configured output width.
func (e *OpenAIEmbedder) Dimension() int { return e.dimension }

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (e *OpenAIEmbedder) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorCodeEmbedding, "waiting for rate limiter", err)
	}

	body, err := json.Marshal(embeddingRequest{
		Input:      texts,
		Model:      e.model,
		Dimensions: e.dimension,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorCodeEmbedding, "encoding embedding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorCodeEmbedding, "building embedding request", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorCodeEmbedding, "calling embedding API", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorCodeEmbedding, "reading embedding response", err)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorCodeEmbedding, "decoding embedding response", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("embedding API returned %d", resp.StatusCode)
		if parsed.Error != nil {
			msg = fmt.Sprintf("%s: %s", msg, parsed.Error.Message)
		}
		return nil, apperrors.New(apperrors.ErrorCodeEmbedding, msg, nil)
	}
	if len(parsed.Data) != len(texts) {
		return nil, apperrors.New(apperrors.ErrorCodeEmbedding,
			fmt.Sprintf("embedding API returned %d vectors for %d inputs", len(parsed.Data), len(texts)), nil)
	}

	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, apperrors.New(apperrors.ErrorCodeEmbedding, "embedding API returned an out of range index", nil)
		}
		if len(d.Embedding) != e.dimension {
			return nil, apperrors.New(apperrors.ErrorCodeEmbedding,
				fmt.Sprintf("embedding dimension %d does not match configured %d", len(d.Embedding), e.dimension), nil)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// rateLimiter spaces requests to stay under a per-minute budget.
type rateLimiter struct {
	interval time.Duration
	next     chan time.Time
}

func newRateLimiter(rpm int) *rateLimiter {
	if rpm <= 0 {
		rpm = 3000
	}
	l := &rateLimiter{
		interval: time.Minute / time.Duration(rpm),
		next:     make(chan time.Time, 1),
	}
	l.next <- time.Now()
	return l
}

func (l *rateLimiter) Wait(ctx context.Context) error {
	select {
	case at := <-l.next:
		defer func() { l.next <- time.Now().Add(l.interval) }()
		if wait := time.Until(at); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
