package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/SaintWyss/ragcore/internal/apperrors"
	"github.com/SaintWyss/ragcore/internal/domain"
	"github.com/SaintWyss/ragcore/internal/obslog"
	"github.com/SaintWyss/ragcore/internal/policy"
)

type principalContextKey struct{}

// principalFromContext returns the principal resolved by requireAuth, or
// the zero Principal if none was set (e.g. on an unauthenticated route).
func principalFromContext(ctx context.Context) policy.Principal {
	p, _ := ctx.Value(principalContextKey{}).(policy.Principal)
	return p
}

func requestIDFromContext(ctx context.Context) string {
	return middleware.GetReqID(ctx)
}

// requireAuth resolves the authenticated principal from the identity
// headers an upstream gateway sets after validating the caller's session
// (spec §6.1: "All mutating routes require an authenticated principal
// resolved by the identity collaborator"). The identity collaborator
// itself — session issuance, password/SSO verification, cookie signing
// with JWT_SECRET — is out of scope for this core (spec Non-goals); this
// middleware only trusts what it is handed and refuses a request that is
// missing or inactive.
func requireAuth(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Principal-Id")
			if id == "" {
				writeProblem(w, r, logger, apperrors.New(apperrors.ErrorTypeUnauthenticated, "missing authenticated principal"))
				return
			}
			role := domain.Role(r.Header.Get("X-Principal-Role"))
			if role != domain.RoleAdmin && role != domain.RoleEmployee {
				writeProblem(w, r, logger, apperrors.New(apperrors.ErrorTypeUnauthenticated, "unrecognized principal role"))
				return
			}
			active := r.Header.Get("X-Principal-Active") != "false"

			principal := policy.Principal{ID: id, Role: role, Active: active}
			ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestLogger logs one structured line per request at completion,
// carrying the chi request id, method, path, status, and latency.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				append(obslog.HTTPFields(r.Method, r.URL.Path, ww.Status()).Duration(time.Since(start)).Zap(),
					zap.String("request_id", requestIDFromContext(r.Context())))...)
		})
	}
}

// recoverer converts a panic in a downstream handler into a 500 problem
// response instead of crashing the process, matching chi's Recoverer but
// emitting our RFC 7807 body.
func recoverer(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", obslog.HTTPFields(r.Method, r.URL.Path, http.StatusInternalServerError).Custom("panic", rec).Zap()...)
					writeProblem(w, r, logger, apperrors.NewInternalError(nil))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
