package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"bidsmith/internal/domain"
	"bidsmith/internal/usecase"
)

const defaultIdentityHeader = "x-caller-id"

// SecretSource yields the shared internal service secret.
type SecretSource interface {
	Value(ctx context.Context) (string, error)
}

// CallerResolver identifies the caller of a request. A bearer token equal to
// the internal secret marks the service caller; otherwise the identity comes
// from the header set by the upstream authentication layer.
type CallerResolver struct {
	identityHeader string
	secret         SecretSource
}

func NewCallerResolver(identityHeader string, secret SecretSource) (*CallerResolver, error) {
	if secret == nil {
		return nil, errors.New("handler: secret source must not be nil")
	}
	identityHeader = strings.ToLower(strings.TrimSpace(identityHeader))
	if identityHeader == "" {
		identityHeader = defaultIdentityHeader
	}
	return &CallerResolver{identityHeader: identityHeader, secret: secret}, nil
}

// Resolve never returns an unauthenticated caller without an error.
func (r *CallerResolver) Resolve(ctx context.Context, headers map[string]string) (domain.Caller, error) {
	if auth := header(headers, "authorization"); auth != "" {
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return domain.Caller{}, &usecase.Error{Code: usecase.ErrorUnauthenticated, Reason: "malformed_authorization"}
		}
		secret, err := r.secret.Value(ctx)
		if err != nil {
			return domain.Caller{}, &usecase.Error{Code: usecase.ErrorInternal, Reason: "ssm_load_error", Err: err}
		}
		if secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			return domain.Caller{}, &usecase.Error{Code: usecase.ErrorUnauthenticated, Reason: "invalid_service_token"}
		}
		return domain.Caller{Service: true}, nil
	}
	identity := strings.TrimSpace(header(headers, r.identityHeader))
	if identity == "" {
		return domain.Caller{}, &usecase.Error{Code: usecase.ErrorUnauthenticated, Reason: "identity_required"}
	}
	return domain.Caller{Identity: identity}, nil
}

// header looks up name case-insensitively.
func header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
