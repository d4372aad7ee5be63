// Package tokens provides token accounting for the assembly budget. The
// default counter wraps tiktoken's BPE encodings per model; a cheap
// character-ratio estimator stands in when encodings cannot be loaded.
package tokens

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts prompt tokens for a model. Counting is on the hot path
// of every selection pass, so implementations should be cheap to call
// repeatedly for the same model.
type Tokenizer interface {
	Count(ctx context.Context, text, model string) (int, error)
}

// fallbackEncoding is used for models tiktoken does not know about.
const fallbackEncoding = "cl100k_base"

// TikTokenizer counts with real BPE encodings, one cached encoder per model.
type TikTokenizer struct {
	mu       sync.Mutex
	encoders map[string]*tiktoken.Tiktoken
}

// NewTikTokenizer returns a counter with an empty encoder cache. Encoders
// are resolved lazily on first use per model.
func NewTikTokenizer() *TikTokenizer {
	return &TikTokenizer{encoders: make(map[string]*tiktoken.Tiktoken)}
}

func (t *TikTokenizer) encoderFor(model string) (*tiktoken.Tiktoken, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if enc, ok := t.encoders[model]; ok {
		return enc, nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("loading %s encoding: %w", fallbackEncoding, err)
		}
	}
	t.encoders[model] = enc
	return enc, nil
}

// Count returns the exact token count of text for the model.
func (t *TikTokenizer) Count(ctx context.Context, text, model string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	enc, err := t.encoderFor(model)
	if err != nil {
		return 0, fmt.Errorf("tokenizer unavailable for %q: %w", model, err)
	}
	return len(enc.Encode(text, nil, nil)), nil
}
