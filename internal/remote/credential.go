package remote

import (
	"os"
	"strings"
	"sync"
)

// CredentialProvider supplies the bearer credential for remote calls.
//
// The authentication flow itself lives outside this subsystem; the engine
// only needs to know whether a credential is currently available. A missing
// credential forces the sync status to offline.
type CredentialProvider interface {
	// Token returns the current bearer credential. ok is false when no
	// credential is available (signed out, token file removed, etc).
	Token() (token string, ok bool)
}

// StaticProvider returns a fixed token. Useful for tests and for callers
// that manage the credential lifecycle themselves.
type StaticProvider struct {
	mu    sync.RWMutex
	token string
}

// NewStaticProvider creates a provider holding the given token.
// An empty token means no credential is available.
func NewStaticProvider(token string) *StaticProvider {
	return &StaticProvider{token: token}
}

// Token implements CredentialProvider.
func (p *StaticProvider) Token() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token, p.token != ""
}

// Set replaces the held token. Setting an empty token simulates the
// credential becoming unavailable.
func (p *StaticProvider) Set(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = token
}

// FileProvider reads the credential from a file on every call, so an
// external sign-in flow can drop or remove the token without restarting
// the daemon.
type FileProvider struct {
	path string
}

// NewFileProvider creates a provider reading the token from path.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// Token implements CredentialProvider. A missing, unreadable, or empty
// file means no credential is available.
func (p *FileProvider) Token() (string, bool) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return "", false
	}
	token := strings.TrimSpace(string(data))
	return token, token != ""
}
