package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Credential is one secret for one provider. Failed is set by the router on
// any failed attempt and cleared only by [ProviderPool.ResetEpoch].
type Credential struct {
	ProviderID string
	Secret     string
	Failed     bool
}

// ProviderSpec describes one entry of the provider chain.
type ProviderSpec struct {
	// ID selects the backend ("gemini", "groq", "openrouter", ...).
	ID      string
	Model   string
	BaseURL string

	// Keys are tried in order. An empty list yields a single keyless
	// credential for local backends such as Ollama.
	Keys []string

	// Temperature, MaxTokens and Stop fill unset request fields.
	Temperature float64
	MaxTokens   int
	Stop        []string

	// Timeout bounds a single attempt. Zero means no per-attempt bound.
	Timeout time.Duration
}

// ProviderPool owns the credential state of a provider chain. The chain
// order is fixed at construction.
type ProviderPool struct {
	specs []ProviderSpec

	mu    sync.Mutex
	creds [][]Credential
	epoch uint64
}

// NewProviderPool builds a pool from chain. Provider IDs must be unique.
func NewProviderPool(chain []ProviderSpec) (*ProviderPool, error) {
	if len(chain) == 0 {
		return nil, errors.New("resilience: provider chain is empty")
	}
	p := &ProviderPool{
		specs: make([]ProviderSpec, len(chain)),
		creds: make([][]Credential, len(chain)),
	}
	seen := make(map[string]bool, len(chain))
	for i, spec := range chain {
		if spec.ID == "" {
			return nil, fmt.Errorf("resilience: chain[%d]: provider id is empty", i)
		}
		if seen[spec.ID] {
			return nil, fmt.Errorf("resilience: chain[%d]: duplicate provider %q", i, spec.ID)
		}
		seen[spec.ID] = true

		keys := spec.Keys
		if len(keys) == 0 {
			keys = []string{""}
		}
		spec.Keys = append([]string(nil), keys...)
		p.specs[i] = spec
		for _, k := range keys {
			p.creds[i] = append(p.creds[i], Credential{ProviderID: spec.ID, Secret: k})
		}
	}
	return p, nil
}

// Chain returns the provider specs in priority order.
func (p *ProviderPool) Chain() []ProviderSpec {
	out := make([]ProviderSpec, len(p.specs))
	copy(out, p.specs)
	return out
}

// Credentials returns a copy of every credential in chain order.
func (p *ProviderPool) Credentials() []Credential {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Credential
	for _, cs := range p.creds {
		out = append(out, cs...)
	}
	return out
}

// Live returns the number of credentials not marked failed.
func (p *ProviderPool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, cs := range p.creds {
		for _, c := range cs {
			if !c.Failed {
				n++
			}
		}
	}
	return n
}

// Epoch returns the current failure epoch.
func (p *ProviderPool) Epoch() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.epoch
}

// ResetEpoch re-enables every credential and starts a new epoch. Failures
// of attempts begun in an earlier epoch are ignored.
func (p *ProviderPool) ResetEpoch() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.epoch++
	for i := range p.creds {
		for j := range p.creds[i] {
			p.creds[i][j].Failed = false
		}
	}
}

// acquire returns the credential at (provider, index) and the current epoch
// if it is usable.
func (p *ProviderPool) acquire(provider, index int) (Credential, uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.creds[provider][index]
	return c, p.epoch, !c.Failed
}

// markFailed flags a credential. It reports false when epoch is stale or the
// credential was already failed.
func (p *ProviderPool) markFailed(provider, index int, epoch uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if epoch != p.epoch || p.creds[provider][index].Failed {
		return false
	}
	p.creds[provider][index].Failed = true
	return true
}
