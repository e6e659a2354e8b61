package identity

import "context"

// Header names set by the gateway and forwarded to the relay
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
)

// Identity is the caller's session identity. It is only carried, never verified here.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
}

type ctxKey struct{}

// WithIdentity returns a context carrying id
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored in ctx, if any
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id.UserID != ""
}

// Headers returns the identity as forwarding headers
func (id Identity) Headers() map[string]string {
	h := map[string]string{HeaderUserID: id.UserID}
	if id.Email != "" {
		h[HeaderUserEmail] = id.Email
	}
	if id.Name != "" {
		h[HeaderUserName] = id.Name
	}
	return h
}
