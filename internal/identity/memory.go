package identity

import (
	"context"
	"fmt"
	"sync"
)

type memPrincipal struct {
	Principal
	secretHash string
}

// MemProvider is an in-memory Provider used by tests.
type MemProvider struct {
	mu         sync.Mutex
	byID       map[string]*memPrincipal
	next       int
	ResetsSent []string
}

func NewMemProvider() *MemProvider {
	return &MemProvider{byID: make(map[string]*memPrincipal)}
}

func (p *MemProvider) CreatePrincipal(ctx context.Context, email, secret, displayName string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.byID {
		if existing.Email == email {
			return "", ErrEmailTaken
		}
	}
	hash, err := HashSecret(secret)
	if err != nil {
		return "", err
	}
	p.next++
	id := fmt.Sprintf("uid-%04d", p.next)
	p.byID[id] = &memPrincipal{
		Principal:  Principal{ID: id, Email: email, DisplayName: displayName},
		secretHash: hash,
	}
	return id, nil
}

func (p *MemProvider) Authenticate(ctx context.Context, email, secret string) (*Principal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pr := range p.byID {
		if pr.Email == email {
			if !CheckSecretHash(secret, pr.secretHash) {
				return nil, ErrBadCredentials
			}
			if pr.Disabled {
				return nil, ErrDisabled
			}
			cp := pr.Principal
			return &cp, nil
		}
	}
	return nil, ErrBadCredentials
}

func (p *MemProvider) GetPrincipalByEmail(ctx context.Context, email string) (*Principal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pr := range p.byID {
		if pr.Email == email {
			cp := pr.Principal
			return &cp, nil
		}
	}
	return nil, ErrPrincipalNotFound
}

func (p *MemProvider) SetClaims(ctx context.Context, principalID string, claims map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr, ok := p.byID[principalID]
	if !ok {
		return ErrPrincipalNotFound
	}
	pr.Claims = claims
	return nil
}

func (p *MemProvider) UpdatePrincipal(ctx context.Context, principalID string, fields Fields) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr, ok := p.byID[principalID]
	if !ok {
		return ErrPrincipalNotFound
	}
	if fields.Email != nil {
		pr.Email = *fields.Email
	}
	if fields.DisplayName != nil {
		pr.DisplayName = *fields.DisplayName
	}
	if fields.Secret != nil {
		hash, err := HashSecret(*fields.Secret)
		if err != nil {
			return err
		}
		pr.secretHash = hash
	}
	return nil
}

func (p *MemProvider) SetDisabled(ctx context.Context, principalID string, disabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr, ok := p.byID[principalID]
	if !ok {
		return ErrPrincipalNotFound
	}
	pr.Disabled = disabled
	return nil
}

func (p *MemProvider) DeletePrincipal(ctx context.Context, principalID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byID[principalID]; !ok {
		return ErrPrincipalNotFound
	}
	delete(p.byID, principalID)
	return nil
}

func (p *MemProvider) SendCredentialReset(ctx context.Context, email string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pr := range p.byID {
		if pr.Email == email {
			p.ResetsSent = append(p.ResetsSent, email)
			return nil
		}
	}
	return ErrPrincipalNotFound
}

// Lookup returns the stored principal for assertions in tests.
func (p *MemProvider) Lookup(principalID string) (*Principal, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr, ok := p.byID[principalID]
	if !ok {
		return nil, false
	}
	cp := pr.Principal
	return &cp, true
}
