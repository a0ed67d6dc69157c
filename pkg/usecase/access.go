package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/relwatch/pkg/domain/interfaces"
	"github.com/m-mizutani/relwatch/pkg/domain/model"
)

// DefaultAccessTTL is how long a positive access decision is reused
const DefaultAccessTTL = 10 * time.Minute

type accessEntry struct {
	identity  *model.Identity
	expiresAt time.Time
}

type accessUseCase struct {
	client interfaces.OrgMembership
	org    string
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]accessEntry
}

var _ interfaces.AccessUseCase = (*accessUseCase)(nil)

// AccessOption is a functional option for the access use case
type AccessOption func(*accessUseCase)

// WithAccessTTL sets how long a positive decision is cached
func WithAccessTTL(ttl time.Duration) AccessOption {
	return func(uc *accessUseCase) {
		uc.ttl = ttl
	}
}

// WithAccessClock replaces time.Now for decision expiry
func WithAccessClock(now func() time.Time) AccessOption {
	return func(uc *accessUseCase) {
		uc.now = now
	}
}

// NewAccess creates a new instance of AccessUseCase gating on membership of org
func NewAccess(client interfaces.OrgMembership, org string, opts ...AccessOption) *accessUseCase {
	uc := &accessUseCase{
		client:  client,
		org:     org,
		ttl:     DefaultAccessTTL,
		now:     time.Now,
		entries: make(map[string]accessEntry),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func credentialHash(cred model.Credential) string {
	sum := sha256.Sum256([]byte(cred))
	return hex.EncodeToString(sum[:])
}

// Authorize returns the identity behind cred when the user belongs to the
// organization. A rejected credential is tagged model.ErrTagAuth and a
// non-member model.ErrTagForbidden.
func (uc *accessUseCase) Authorize(ctx context.Context, cred model.Credential) (*model.Identity, error) {
	if cred == "" {
		return nil, goerr.New("no credential provided", goerr.T(model.ErrTagAuth))
	}

	key := credentialHash(cred)
	if id, ok := uc.lookup(key); ok {
		return id, nil
	}

	logger := ctxlog.From(ctx)

	identity, err := uc.client.CurrentUser(ctx, cred)
	if err != nil {
		if goerr.HasTag(err, model.ErrTagAuth) {
			return nil, err
		}
		return nil, goerr.Wrap(err, "failed to verify credential")
	}

	member, err := uc.isMember(ctx, cred, identity.Login)
	if err != nil {
		return nil, err
	}
	if !member {
		logger.Warn("Access denied", "login", identity.Login, "org", uc.org)
		return nil, goerr.New("user is not a member of the organization",
			goerr.T(model.ErrTagForbidden),
			goerr.V("login", identity.Login),
			goerr.V("org", uc.org),
		)
	}

	uc.store(key, identity)
	logger.Info("Access granted", "login", identity.Login, "org", uc.org)

	copied := *identity
	return &copied, nil
}

// isMember tries the organization members endpoint first, then the user's
// organization list, then private repository visibility
func (uc *accessUseCase) isMember(ctx context.Context, cred model.Credential, login string) (bool, error) {
	logger := ctxlog.From(ctx)

	member, err := uc.client.IsOrgMember(ctx, cred, uc.org, login)
	if err == nil && member {
		return true, nil
	}
	if err != nil {
		if model.IsAuthError(err) {
			return false, err
		}
		logger.Debug("Membership check failed, trying organization list", "error", err)
	}

	orgs, err := uc.client.ListUserOrgs(ctx, cred)
	if err != nil {
		if model.IsAuthError(err) {
			return false, err
		}
		logger.Debug("Organization list failed, trying private repositories", "error", err)
	} else {
		for _, org := range orgs {
			if strings.EqualFold(org, uc.org) {
				return true, nil
			}
		}
	}

	ok, err := uc.client.CanListPrivateOrgRepos(ctx, cred, uc.org)
	if err != nil {
		if model.IsAuthError(err) {
			return false, err
		}
		return false, goerr.Wrap(err, "failed to verify organization membership", goerr.V("org", uc.org))
	}
	return ok, nil
}

func (uc *accessUseCase) lookup(key string) (*model.Identity, bool) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	entry, ok := uc.entries[key]
	if !ok {
		return nil, false
	}
	if !uc.now().Before(entry.expiresAt) {
		delete(uc.entries, key)
		return nil, false
	}
	copied := *entry.identity
	return &copied, true
}

func (uc *accessUseCase) store(key string, identity *model.Identity) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	copied := *identity
	uc.entries[key] = accessEntry{identity: &copied, expiresAt: uc.now().Add(uc.ttl)}
}
