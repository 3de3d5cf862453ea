package auth

import (
	"context"
	"strings"
)

// Role constants carried in the Firebase role claim.
const (
	RoleBuyer    = "buyer"
	RoleOperator = "operator"
)

// Identity is the buyer authenticated from a Firebase ID token.
type Identity struct {
	UID    string
	Email  string
	Roles  []string
	Locale string
}

// HasRole reports whether the identity includes the requested role (case-insensitive).
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = normaliseRole(role)
	if role == "" {
		return false
	}
	for _, r := range i.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

type contextKey string

const (
	identityContextKey contextKey = "freshfood/auth/identity"
	operatorContextKey contextKey = "freshfood/auth/operator"
)

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// BuyerID returns the uid of the authenticated buyer, or "" for anonymous requests.
func BuyerID(ctx context.Context) string {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return ""
	}
	return identity.UID
}

// WithOperator records the back-office operator that signed the request.
func WithOperator(ctx context.Context, operatorID string) context.Context {
	return context.WithValue(ctx, operatorContextKey, operatorID)
}

// OperatorFromContext returns the operator id recorded by the HMAC middleware.
func OperatorFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(operatorContextKey).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
