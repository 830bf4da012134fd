package fitter

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	. "github.com/switchyard-ai/switchyard/internal/logging"
)

// DefaultEncoding is the tiktoken encoding used for estimation. cl100k_base
// tracks GPT-4-era tokenizers closely enough for admission decisions, and
// the other families we route do not publish theirs.
const DefaultEncoding = "cl100k_base"

// Estimator counts tokens with tiktoken, degrading to a chars/4 heuristic
// when the encoding cannot be initialized (for example with no cached BPE
// data and no network).
type Estimator struct {
	mu        sync.Mutex
	heuristic bool
	loaded    bool
	encoding  *tiktoken.Tiktoken
}

// NewEstimator returns a tiktoken-backed estimator. The encoding is loaded
// lazily on first use.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// HeuristicEstimator returns an estimator that always uses the chars/4
// fallback. Deterministic, which is what tests want.
func HeuristicEstimator() *Estimator {
	return &Estimator{heuristic: true}
}

// Count returns the number of tokens in text.
func (e *Estimator) Count(text string) int {
	enc := e.enc()
	if enc == nil {
		return heuristicCount(text)
	}
	return len(enc.Encode(text, nil, nil))
}

func (e *Estimator) enc() *tiktoken.Tiktoken {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.heuristic {
		return nil
	}
	if !e.loaded {
		e.loaded = true
		enc, err := tiktoken.GetEncoding(DefaultEncoding)
		if err != nil {
			L_warn("fitter: tiktoken unavailable, estimating at 4 chars/token", "error", err)
		} else {
			e.encoding = enc
		}
	}
	return e.encoding
}

// heuristicCount approximates tokens at 4 characters each, the usual rule
// of thumb for English text.
func heuristicCount(text string) int {
	return len(text) / 4
}

var (
	sharedEst  *Estimator
	sharedOnce sync.Once
)

// sharedEstimator returns the process-wide estimator so the BPE tables are
// loaded once no matter how many fitters exist.
func sharedEstimator() *Estimator {
	sharedOnce.Do(func() {
		sharedEst = NewEstimator()
	})
	return sharedEst
}
