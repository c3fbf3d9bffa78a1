// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/hitoshi/radioedit/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	userIDContextKey     = contextKey("user_id")
	userHolderContextKey = contextKey("user_holder")
)

// userHolder は外側のミドルウェアが内側で確定したユーザーIDを受け取るための箱。
type userHolder struct {
	mu sync.Mutex
	id string
}

func (h *userHolder) set(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.id = id
}

func (h *userHolder) get() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.id
}

func withUserHolder(ctx context.Context, h *userHolder) context.Context {
	return context.WithValue(ctx, userHolderContextKey, h)
}

// TokenSet はAPIトークンとユーザーIDの対応。
type TokenSet map[string]string

// ParseTokens は "user:token,user2:token2" 形式の文字列を解析する。
// 空要素は無視し、形式不正やトークンの重複はエラーとする。
func ParseTokens(raw string) (TokenSet, error) {
	tokens := make(TokenSet)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		user, token, ok := strings.Cut(entry, ":")
		user, token = strings.TrimSpace(user), strings.TrimSpace(token)
		if !ok || user == "" || token == "" {
			return nil, fmt.Errorf("invalid token entry %q: want user:token", entry)
		}
		if _, dup := tokens[token]; dup {
			return nil, fmt.Errorf("duplicate token for user %q", user)
		}
		tokens[token] = user
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("no API tokens configured")
	}
	return tokens, nil
}

// lookup は定数時間比較でトークンに対応するユーザーIDを探す。
func (ts TokenSet) lookup(presented string) (string, bool) {
	var userID string
	found := false
	for token, user := range ts {
		if subtle.ConstantTimeCompare([]byte(token), []byte(presented)) == 1 {
			userID = user
			found = true
		}
	}
	return userID, found
}

// NewBearerAuthMiddleware は Authorization: Bearer ヘッダーのトークンを検証し、
// 対応するユーザーIDをリクエストコンテキストに注入するミドルウェアを返す。
// トークンがない、または一致しない場合は401を返す。
func NewBearerAuthMiddleware(tokens TokenSet) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, presented, _ := strings.Cut(r.Header.Get("Authorization"), " ")
			presented = strings.TrimSpace(presented)
			if !strings.EqualFold(scheme, "Bearer") || presented == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="radioedit"`)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			userID, ok := tokens.lookup(presented)
			if !ok {
				slog.Warn("invalid bearer token",
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="radioedit", error="invalid_token"`)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), userID)))
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// ロギングミドルウェアの内側で呼ばれた場合は、ログにもユーザーIDが載る。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if h, ok := ctx.Value(userHolderContextKey).(*userHolder); ok {
		h.set(userID)
	}
	return context.WithValue(ctx, userIDContextKey, userID)
}
