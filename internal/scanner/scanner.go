package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"DealScanner/internal/domain"
)

var (
	// ErrUnknownSource is returned for names that were never registered.
	ErrUnknownSource = errors.New("unknown source")
	// ErrMissingCredentials blocks enabling a source that lacks credentials.
	ErrMissingCredentials = errors.New("missing credentials")
)

// Scanner is a source adapter. Zero offers is a successful scan.
type Scanner interface {
	Name() string
	Scan(ctx context.Context, window domain.Window) ([]domain.RawOffer, error)
}

// CredentialLookup reports whether a named credential is available.
type CredentialLookup func(name string) bool

// EnvCredentials treats a credential as present when the environment
// variable of that name is non-empty.
func EnvCredentials(name string) bool {
	return strings.TrimSpace(os.Getenv(name)) != ""
}

// Environment carries the process-wide safety switches.
type Environment struct {
	Deterministic bool
	AllowScraping bool
}

// Locked reports whether network-performing sources must stay off.
func (e Environment) Locked() bool {
	return e.Deterministic || !e.AllowScraping
}

type entry struct {
	descriptor domain.SourceDescriptor
	scanner    Scanner
}

// Registry keeps source descriptors and their adapters.
type Registry struct {
	mu          sync.RWMutex
	entries     map[string]*entry
	credentials CredentialLookup
	envLocked   bool
	scraping    bool
}

// NewRegistry builds an empty registry. A nil lookup reads the environment.
func NewRegistry(credentials CredentialLookup) *Registry {
	if credentials == nil {
		credentials = EnvCredentials
	}
	return &Registry{
		entries:     map[string]*entry{},
		credentials: credentials,
		scraping:    true,
	}
}

// Register adds or replaces a source. A source missing any required
// credential is stored disabled with the missing names in LastError.
func (r *Registry) Register(descriptor domain.SourceDescriptor, scanner Scanner) {
	if descriptor.Name == "" && scanner != nil {
		descriptor.Name = scanner.Name()
	}
	if missing := r.missingCredentials(descriptor.RequiredCredentials); len(missing) > 0 {
		descriptor.Enabled = false
		descriptor.LastError = "missing credentials: " + strings.Join(missing, ", ")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[descriptor.Name] = &entry{descriptor: descriptor, scanner: scanner}
}

func (r *Registry) missingCredentials(required []string) []string {
	var missing []string
	for _, name := range required {
		if !r.credentials(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// ForceDisableForEnvironment locks every source off for the life of the
// process when env is a test context or scraping is not permitted. The lock
// cannot be lifted by SetEnabled or SetScraping.
func (r *Registry) ForceDisableForEnvironment(env Environment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if env.Locked() {
		r.envLocked = true
	}
}

// EnvironmentLocked reports whether the safety lock is active.
func (r *Registry) EnvironmentLocked() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.envLocked
}

// SetScraping is the operator's global switch.
func (r *Registry) SetScraping(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scraping = enabled
}

// ScrapingAllowed reports whether any source may run right now.
func (r *Registry) ScrapingAllowed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.envLocked && r.scraping
}

// SetEnabled toggles one source.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	if enabled {
		if missing := r.missingCredentials(e.descriptor.RequiredCredentials); len(missing) > 0 {
			return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
		}
	}
	e.descriptor.Enabled = enabled
	return nil
}

// ListEnabled returns enabled sources ordered by priority then name. It is
// empty while the environment lock or the operator switch is off.
func (r *Registry) ListEnabled() []domain.SourceDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.envLocked || !r.scraping {
		return nil
	}
	var out []domain.SourceDescriptor
	for _, e := range r.entries {
		if e.descriptor.Enabled {
			out = append(out, e.descriptor)
		}
	}
	sortDescriptors(out)
	return out
}

// Descriptors returns every source for status views. Enabled reflects the
// environment lock.
func (r *Registry) Descriptors() []domain.SourceDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.SourceDescriptor, 0, len(r.entries))
	for _, e := range r.entries {
		d := e.descriptor
		if r.envLocked {
			d.Enabled = false
		}
		out = append(out, d)
	}
	sortDescriptors(out)
	return out
}

// Get returns one descriptor.
func (r *Registry) Get(name string) (domain.SourceDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return domain.SourceDescriptor{}, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	d := e.descriptor
	if r.envLocked {
		d.Enabled = false
	}
	return d, nil
}

// Resolve returns the adapter registered under name.
func (r *Registry) Resolve(name string) (Scanner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.entries[name]; ok && e.scanner != nil {
		return e.scanner, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
}

// RecordResult updates source health after a collection attempt.
func (r *Registry) RecordResult(name string, err error, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return
	}
	if err != nil {
		e.descriptor.LastError = err.Error()
		e.descriptor.ConsecutiveFailures++
		return
	}
	e.descriptor.LastError = ""
	e.descriptor.ConsecutiveFailures = 0
	e.descriptor.LastSuccessAt = at
}

// Len reports how many sources are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func sortDescriptors(ds []domain.SourceDescriptor) {
	sort.Slice(ds, func(i, j int) bool {
		if ds[i].Priority != ds[j].Priority {
			return ds[i].Priority < ds[j].Priority
		}
		return ds[i].Name < ds[j].Name
	})
}
