package auth

import "sync"

// UserConfig is one user's authentication configuration within a realm.
type UserConfig struct {
	Policy Policy
	Secret string
	Salt   *Salt // nil uses Secret as the raw CRA key
}

// StaticProvider is an in-memory, map-backed Provider for tests and simple
// deployments. Safe for concurrent use.
type StaticProvider struct {
	name string

	mu    sync.RWMutex
	users map[string]map[string]UserConfig // realm -> user -> config
}

// NewStaticProvider builds a StaticProvider advertising providerName in
// CHALLENGE messages.
func NewStaticProvider(providerName string) *StaticProvider {
	return &StaticProvider{name: providerName, users: make(map[string]map[string]UserConfig)}
}

// SetUser installs or replaces a user's configuration on a realm.
func (p *StaticProvider) SetUser(realm, user string, cfg UserConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.users[realm] == nil {
		p.users[realm] = make(map[string]UserConfig)
	}
	p.users[realm][user] = cfg
}

func (p *StaticProvider) ProviderName(realm string) string { return p.name }

func (p *StaticProvider) Policy(user, realm string) (Policy, error) {
	cfg, ok := p.lookup(user, realm)
	if !ok {
		return Policy{Mode: ModeDeny}, nil
	}
	return cfg.Policy, nil
}

func (p *StaticProvider) UserSecret(user, realm string) (string, error) {
	cfg, ok := p.lookup(user, realm)
	if !ok {
		return "", ErrUnknownUser
	}
	return cfg.Secret, nil
}

func (p *StaticProvider) CRASalt(user, realm string) (Salt, bool, error) {
	cfg, ok := p.lookup(user, realm)
	if !ok {
		return Salt{}, false, ErrUnknownUser
	}
	if cfg.Salt == nil {
		return Salt{}, false, nil
	}
	return *cfg.Salt, true, nil
}

// lookup resolves the exact user first, then the realm's "" entry, which
// acts as a catch-all for realms that admit any authid (an open realm
// configured once rather than per user).
func (p *StaticProvider) lookup(user, realm string) (UserConfig, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	realmUsers, ok := p.users[realm]
	if !ok {
		return UserConfig{}, false
	}
	if cfg, ok := realmUsers[user]; ok {
		return cfg, true
	}
	cfg, ok := realmUsers[""]
	return cfg, ok
}
