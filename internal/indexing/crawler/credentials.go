package crawler

import (
	"strings"

	"github.com/vietddude/tokenwatch/internal/core/domain"
)

// CredentialPool is an ordered list of API keys with one-directional failover.
// A key that was passed over is never used again within the same crawl.
type CredentialPool struct {
	keys  []string
	index int
}

// NewCredentialPool creates a pool from keys, skipping blank entries.
func NewCredentialPool(keys []string) (*CredentialPool, error) {
	cleaned := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			cleaned = append(cleaned, k)
		}
	}
	if len(cleaned) == 0 {
		return nil, domain.ErrNoCredentials
	}
	return &CredentialPool{keys: cleaned}, nil
}

// Current returns the active credential.
func (p *CredentialPool) Current() string {
	return p.keys[p.index]
}

// Index returns the position of the active credential.
func (p *CredentialPool) Index() int {
	return p.index
}

// Len returns the number of credentials in the pool.
func (p *CredentialPool) Len() int {
	return len(p.keys)
}

// Advance moves to the next credential. It returns domain.ErrPoolExhausted
// when none remain, leaving the pool on its last key.
func (p *CredentialPool) Advance() error {
	if p.index+1 >= len(p.keys) {
		return domain.ErrPoolExhausted
	}
	p.index++
	return nil
}

// MaskKey hides all but the last four characters of a credential for logging.
func MaskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
