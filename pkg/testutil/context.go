package testutil

import (
	"net/http"

	"remit/pkg/domain"
	"remit/pkg/requestcontext"
)

// WithCaller adds an authenticated account to the request context.
// This simulates what the auth middleware does for bearer-token requests.
func WithCaller(req *http.Request, account domain.AccountID) *http.Request {
	return req.WithContext(requestcontext.WithCaller(req.Context(), account))
}

// WithRequestID adds a request ID to the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
