package idempotency

import (
	"bytes"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/zeebo/blake3"

	dErrors "remit/pkg/domain-errors"
	"remit/pkg/platform/httputil"
	"remit/pkg/requestcontext"
)

const (
	// Header is the request header carrying the client's key.
	Header = "Idempotency-Key"
	// HeaderReplayed marks responses served from the cache.
	HeaderReplayed = "Idempotent-Replayed"

	lockTimeout  = 10 * time.Second
	maxKeyLength = 255
	maxBodyBytes = 1 << 20
)

// recorder tees the response so it can be cached.
type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Middleware replays the stored response for a repeated Idempotency-Key.
// Keys are scoped to the authenticated caller. Only 2xx responses are
// cached, so a rejected request may be retried with the same key. Reusing a
// key with a different request body is a conflict.
func Middleware(store Store, ttl time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(Header)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if len(key) > maxKeyLength {
				httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "idempotency key too long"))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
			if err != nil {
				httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unreadable request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			scoped := requestcontext.Caller(ctx).Hex() + ":" + key
			fingerprint := Fingerprint(r.Method, r.URL.Path, body)

			// lookup reports whether the request was answered from the cache.
			lookup := func() bool {
				cached, ok, err := store.Get(ctx, scoped)
				if err != nil {
					logger.ErrorContext(ctx, "idempotency lookup failed",
						"error", err,
						"request_id", requestcontext.RequestID(ctx),
					)
					httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "idempotency store unavailable"))
					return true
				}
				if !ok {
					return false
				}
				if cached.Fingerprint != fingerprint {
					httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "idempotency key reused with a different request"))
					return true
				}
				replay(w, cached)
				return true
			}
			if lookup() {
				return
			}

			acquired, err := store.Lock(ctx, scoped, lockTimeout)
			if err != nil {
				logger.ErrorContext(ctx, "idempotency lock failed",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "idempotency store unavailable"))
				return
			}
			if !acquired {
				httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "a request with this idempotency key is in progress"))
				return
			}
			defer func() {
				if err := store.Unlock(ctx, scoped); err != nil {
					logger.WarnContext(ctx, "idempotency unlock failed", "error", err)
				}
			}()
			// The previous holder may have saved its response and unlocked
			// between the first lookup and Lock.
			if lookup() {
				return
			}

			rec := &recorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			if rec.status < 200 || rec.status >= 300 {
				return
			}
			resp := &Response{
				Status:      rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
				Fingerprint: fingerprint,
			}
			if err := store.Save(ctx, scoped, resp, ttl); err != nil {
				logger.WarnContext(ctx, "failed to cache idempotent response",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
			}
		})
	}
}

func replay(w http.ResponseWriter, resp *Response) {
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.Header().Set(HeaderReplayed, "true")
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

// Fingerprint hashes the parts of a request that must match on replay.
func Fingerprint(method, path string, body []byte) string {
	h := blake3.New()
	_, _ = h.Write([]byte(method))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(path))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
