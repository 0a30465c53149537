package pack

import (
	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// encodingName is the tokenizer shared by the chat and embedding models
// the service targets.
const encodingName = "cl100k_base"

// TiktokenCounter counts tokens with a real BPE encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// Count returns the exact token count of text under the encoding.
func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// HeuristicCounter approximates tokens as one per four bytes. It
// overestimates short texts slightly, which keeps packing conservative.
type HeuristicCounter struct{}

// Count returns the approximate token count of text.
func (HeuristicCounter) Count(text string) int {
	return (len(text) + 3) / 4
}

// NewCounter returns a tiktoken-backed counter, or the byte heuristic
// when the encoding cannot be loaded (offline environments fetch the
// BPE ranks lazily).
func NewCounter(logger *zap.Logger) TokenCounter {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		logger.Warn("Token encoding unavailable, using byte heuristic", zap.Error(err))
		return HeuristicCounter{}
	}
	return &TiktokenCounter{enc: enc}
}
