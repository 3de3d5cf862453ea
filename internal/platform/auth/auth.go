// Package auth authenticates the three kinds of callers of the settlement API: buyers carrying
// Firebase ID tokens, the back office signing requests with a shared HMAC secret, and Cloud
// Scheduler jobs presenting Google-signed OIDC tokens.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/httpx"
)

// EventLogger receives authentication events. Rejections are reported with security=true.
type EventLogger func(ctx context.Context, event string, fields map[string]any)

func noopEventLogger(context.Context, string, map[string]any) {}

func respondAuthError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	ctx := r.Context()
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
