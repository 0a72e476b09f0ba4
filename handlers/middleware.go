package handlers

import (
	"context"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/giftshift/giftshift-go/errors"
	"github.com/giftshift/giftshift-go/services"
)

type contextKey string

// AccountIDContextKey carries the authenticated account id, when present.
const AccountIDContextKey contextKey = "account_id"

type MiddleWareHandler interface {
	ValidateAccessToken(http.HandlerFunc) http.HandlerFunc
	AttachOptionalIdentity(http.HandlerFunc) http.HandlerFunc
}

type middlewareHandler struct {
	tokenService services.TokenService
	log          *zap.Logger
}

func NewMiddlewareHandler(tokens services.TokenService, log *zap.Logger) MiddleWareHandler {
	return &middlewareHandler{tokenService: tokens, log: log}
}

func (m *middlewareHandler) ValidateAccessToken(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("authorization"), "Bearer ")
		if token == "" {
			errors.NewInvalidTokenError().Serialize(w)
			return
		}

		accountID, err := m.tokenService.GetAccountIDByToken(r.Context(), token)
		if err != nil {
			errors.AsAppError(err).Serialize(w)
			return
		}

		h.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), AccountIDContextKey, accountID)))
	}
}

// AttachOptionalIdentity resolves a bearer token when one is presented but
// lets anonymous requests through; shifts may be created without an account.
func (m *middlewareHandler) AttachOptionalIdentity(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("authorization"), "Bearer ")
		if token == "" {
			h.ServeHTTP(w, r)
			return
		}

		accountID, err := m.tokenService.GetAccountIDByToken(r.Context(), token)
		if err != nil {
			errors.AsAppError(err).Serialize(w)
			return
		}

		h.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), AccountIDContextKey, accountID)))
	}
}

// AccountIDFromContext returns the authenticated account id, if any.
func AccountIDFromContext(ctx context.Context) *string {
	if id, ok := ctx.Value(AccountIDContextKey).(string); ok && id != "" {
		return &id
	}
	return nil
}

// CallerIP extracts the requester's network address for forwarding to the
// exchange.
func CallerIP(r *http.Request) string {
	if fwd := r.Header.Get("x-forwarded-for"); fwd != "" {
		return strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
