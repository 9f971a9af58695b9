package roles

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
)

// Type classifies a user for limit and credit purposes.
type Type string

const (
	TypeNormal Type = "normal"
	TypeGold   Type = "gold"
)

// Lookup resolves platform role information for a user. Implementations
// live in the chat-platform adapter; the engine never stores role state.
type Lookup interface {
	RoleType(ctx context.Context, userID string) (Type, error)
	HasExtendedLimit(ctx context.Context, userID string) (bool, error)
}

// Static is a Lookup that answers the same for every user. Used when no
// platform adapter is wired in, and in tests.
type Static struct {
	Role     Type
	Extended bool
}

func (s Static) RoleType(context.Context, string) (Type, error)         { return s.Role, nil }
func (s Static) HasExtendedLimit(context.Context, string) (bool, error) { return s.Extended, nil }

// Membership resolves roles from configured user-ID sets. Users absent
// from both sets are normal.
type Membership struct {
	gold     map[string]struct{}
	extended map[string]struct{}
}

// NewMembership builds a Membership lookup from configured ID lists.
func NewMembership(goldUsers, extendedUsers []string) *Membership {
	m := &Membership{
		gold:     make(map[string]struct{}, len(goldUsers)),
		extended: make(map[string]struct{}, len(extendedUsers)),
	}
	for _, id := range goldUsers {
		m.gold[id] = struct{}{}
	}
	for _, id := range extendedUsers {
		m.extended[id] = struct{}{}
	}
	return m
}

func (m *Membership) RoleType(_ context.Context, userID string) (Type, error) {
	if _, ok := m.gold[userID]; ok {
		return TypeGold, nil
	}
	return TypeNormal, nil
}

func (m *Membership) HasExtendedLimit(_ context.Context, userID string) (bool, error) {
	_, ok := m.extended[userID]
	return ok, nil
}

// CachedLookup wraps a Lookup with expiring LRU caches so the sweep does
// not hammer the platform API once per user per pass.
type CachedLookup struct {
	inner      Lookup
	types      *expirable.LRU[string, Type]
	privileges *expirable.LRU[string, bool]
	logger     zerolog.Logger
}

// NewCached creates a caching wrapper around a role lookup.
func NewCached(inner Lookup, size int, ttl time.Duration, logger zerolog.Logger) *CachedLookup {
	return &CachedLookup{
		inner:      inner,
		types:      expirable.NewLRU[string, Type](size, nil, ttl),
		privileges: expirable.NewLRU[string, bool](size, nil, ttl),
		logger:     logger.With().Str("component", "roles").Logger(),
	}
}

// RoleType returns the cached role type, querying the inner lookup on miss.
func (c *CachedLookup) RoleType(ctx context.Context, userID string) (Type, error) {
	if role, ok := c.types.Get(userID); ok {
		return role, nil
	}
	role, err := c.inner.RoleType(ctx, userID)
	if err != nil {
		return TypeNormal, err
	}
	c.types.Add(userID, role)
	return role, nil
}

// HasExtendedLimit returns the cached privilege flag, querying the inner
// lookup on miss.
func (c *CachedLookup) HasExtendedLimit(ctx context.Context, userID string) (bool, error) {
	if extended, ok := c.privileges.Get(userID); ok {
		return extended, nil
	}
	extended, err := c.inner.HasExtendedLimit(ctx, userID)
	if err != nil {
		return false, err
	}
	c.privileges.Add(userID, extended)
	return extended, nil
}

// Invalidate drops cached entries for a user, forcing the next query to
// hit the platform.
func (c *CachedLookup) Invalidate(userID string) {
	c.types.Remove(userID)
	c.privileges.Remove(userID)
}
