package auth

import "context"

type contextKey string

const (
	contextKeyRole    contextKey = "auth.role"
	contextKeySubject contextKey = "auth.subject"
	contextKeyName    contextKey = "auth.name"
)

// Identity is the authenticated caller.
type Identity struct {
	Subject string
	Name    string
	Role    Role
}

// WithIdentity stores auth identity details in context.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	ctx = context.WithValue(ctx, contextKeyRole, identity.Role)
	ctx = context.WithValue(ctx, contextKeySubject, identity.Subject)
	ctx = context.WithValue(ctx, contextKeyName, identity.Name)
	return ctx
}

// IdentityFromContext returns the identity stored by the middleware.
func IdentityFromContext(ctx context.Context) Identity {
	return Identity{
		Subject: SubjectFromContext(ctx),
		Name:    stringValue(ctx, contextKeyName),
		Role:    RoleFromContext(ctx),
	}
}

// RoleFromContext extracts role from context.
func RoleFromContext(ctx context.Context) Role {
	if ctx == nil {
		return ""
	}
	value := ctx.Value(contextKeyRole)
	if role, ok := value.(Role); ok {
		return role
	}
	if role, ok := value.(string); ok {
		if normalized, valid := ParseRole(role); valid {
			return normalized
		}
	}
	return ""
}

// SubjectFromContext extracts subject from context.
func SubjectFromContext(ctx context.Context) string {
	return stringValue(ctx, contextKeySubject)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(key).(string); ok {
		return value
	}
	return ""
}
