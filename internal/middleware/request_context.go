package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/BradenHooton/sentinel/internal/models"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
)

type requestContextKey string

const requestCtxKey requestContextKey = "request_context"

// VisitorCookie is the first-party cookie carrying a stable visitor ID
const VisitorCookie = "sentinel_vid"

// Caller-supplied request attributes. When the calling service forwards the end
// user's request these describe the end user rather than the caller.
const (
	HeaderFingerprint = "X-Client-Fingerprint"
	HeaderVisitorID   = "X-Visitor-ID"
)

// RequestContext resolves the client IP once and stores the request's
// models.RequestContext for handlers and the access log
func RequestContext(ipConfig *pkghttp.IPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqCtx := models.RequestContext{
				IP:        pkghttp.ExtractClientIP(r, ipConfig),
				Path:      r.URL.Path,
				Method:    r.Method,
				UserAgent: r.UserAgent(),
				VisitorID: strings.TrimSpace(r.Header.Get(HeaderVisitorID)),
			}
			if reqCtx.VisitorID == "" {
				if c, err := r.Cookie(VisitorCookie); err == nil {
					reqCtx.VisitorID = c.Value
				}
			}

			reqCtx.Fingerprint = strings.TrimSpace(r.Header.Get(HeaderFingerprint))
			if reqCtx.Fingerprint == "" {
				reqCtx.Fingerprint = Fingerprint(reqCtx.IP, reqCtx.UserAgent, reqCtx.VisitorID)
			}

			ctx := context.WithValue(r.Context(), requestCtxKey, reqCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Fingerprint derives a stable device fingerprint: hex sha256 of ip|user-agent|cookie
func Fingerprint(ip, userAgent, cookie string) string {
	hash := sha256.Sum256([]byte(strings.Join([]string{ip, userAgent, cookie}, "|")))
	return hex.EncodeToString(hash[:])
}

// GetRequestContext returns the stored request context, or a zero value outside the middleware
func GetRequestContext(ctx context.Context) models.RequestContext {
	if reqCtx, ok := ctx.Value(requestCtxKey).(models.RequestContext); ok {
		return reqCtx
	}
	return models.RequestContext{}
}

// WithRequestContext stores reqCtx on ctx as the middleware would
func WithRequestContext(ctx context.Context, reqCtx models.RequestContext) context.Context {
	return context.WithValue(ctx, requestCtxKey, reqCtx)
}
