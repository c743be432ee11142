// Package tokenizer estimates token counts for prompts and responses.
// Counts feed the pricing calculator, so they only need to be close
// enough for spend and savings accounting, not provider-exact.
package tokenizer

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingCache sync.Map
	defaultOnce   sync.Once
	defaultEnc    *tiktoken.Tiktoken
)

// Count returns the token count for text under the given model's
// encoding. If no encoding is available it falls back to a conservative
// len/4 estimate.
func Count(model, text string) int64 {
	if text == "" {
		return 0
	}
	enc := getEncoding(model)
	if enc == nil {
		return int64(len(text) / 4)
	}
	return int64(len(enc.Encode(text, nil, nil)))
}

func getEncoding(model string) *tiktoken.Tiktoken {
	name := normalizeModelName(model)

	if cached, ok := encodingCache.Load(name); ok {
		if enc, ok := cached.(*tiktoken.Tiktoken); ok {
			return enc
		}
		return getDefaultEncoding()
	}

	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		// Cache the failure so unknown models don't retry on every call.
		encodingCache.Store(name, struct{}{})
		return getDefaultEncoding()
	}

	encodingCache.Store(name, enc)
	return enc
}

func getDefaultEncoding() *tiktoken.Tiktoken {
	defaultOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			defaultEnc = enc
		}
	})
	return defaultEnc
}

// normalizeModelName strips provider prefixes and date suffixes so
// versioned deployments resolve to a known encoding.
func normalizeModelName(model string) string {
	name := model
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return "gpt-3.5-turbo"
	}
	return name
}
