package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"remit/pkg/domain"
	dErrors "remit/pkg/domain-errors"
	"remit/pkg/platform/httputil"
	"remit/pkg/requestcontext"
)

// CallerValidator resolves a bearer token to the account it was issued to.
type CallerValidator interface {
	Caller(tokenString string) (domain.AccountID, error)
}

// RequireCaller authenticates the bearer token and stores the caller account
// in the request context.
func RequireCaller(validator CallerValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Missing or invalid Authorization header"))
				return
			}

			caller, err := validator.Caller(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithCaller(ctx, caller)))
		})
	}
}
