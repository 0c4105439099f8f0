package partition

import (
	"errors"
	"sync"

	"berkotech.co/holdout/dataset"
)

var (
	// ErrSealed is returned when the holdout is opened before a selection
	// has been finalized.
	ErrSealed = errors.New("partition: test subset is sealed until selection is finalized")
	// ErrSpent is returned when the holdout is opened a second time.
	ErrSpent = errors.New("partition: test subset has already been used")
	// ErrClaimed is returned when the key of a holdout is claimed twice.
	ErrClaimed = errors.New("partition: holdout key already claimed")
	// ErrWrongKey is returned when a key is used on a holdout that did not
	// mint it.
	ErrWrongKey = errors.New("partition: key does not belong to this holdout")
)

// Holdout guards the test rows. Each holdout mints exactly one Key, and the
// rows can be read once, with that key, after it has been finalized.
type Holdout struct {
	d *dataset.Dataset

	mu      sync.Mutex
	claimed bool
	used    bool
}

// Key unlocks the Holdout that minted it.
type Key struct {
	h *Holdout

	mu    sync.Mutex
	final bool
}

// Len returns the number of test rows without exposing them.
func (h *Holdout) Len() int { return h.d.Len() }

// Claim hands out the only key of h. Model selection claims it before
// fitting, so nothing else can hold it while the winner is chosen.
func (h *Holdout) Claim() (*Key, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.claimed {
		return nil, ErrClaimed
	}
	h.claimed = true
	return &Key{h: h}, nil
}

// Finalize marks the selection holding k as fixed. It cannot be undone.
func (k *Key) Finalize() {
	k.mu.Lock()
	k.final = true
	k.mu.Unlock()
}

func (k *Key) finalized() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.final
}

// Open returns the test rows. It fails unless k was minted by h and
// finalized, and h has not been opened before.
func (h *Holdout) Open(k *Key) (*dataset.Dataset, error) {
	if k == nil {
		return nil, ErrSealed
	}
	if k.h != h {
		return nil, ErrWrongKey
	}
	if !k.finalized() {
		return nil, ErrSealed
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.used {
		return nil, ErrSpent
	}
	h.used = true
	return h.d, nil
}

// Spent reports whether the holdout has been opened.
func (h *Holdout) Spent() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.used
}
