package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/belanjaku/internal/middleware"
	"github.com/hitoshi/belanjaku/internal/model"
)

// UserFinder はプロフィール表示に使うIdentity Storeの参照操作。
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

// PageHandler はストアフロントの画面に対応するJSONペイロードを返す。
// 画面そのものはフロントエンドが描画する。
type PageHandler struct {
	users UserFinder
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(users UserFinder) *PageHandler {
	return &PageHandler{users: users}
}

type pagePayload struct {
	Page        string       `json:"page"`
	User        *sessionUser `json:"user,omitempty"`
	CallbackURL string       `json:"callbackUrl,omitempty"`
	Verified    bool         `json:"verified,omitempty"`
}

type profilePayload struct {
	Page    string        `json:"page"`
	Profile *profileField `json:"profile"`
}

type profileField struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	Name      string `json:"name,omitempty"`
	Image     string `json:"image,omitempty"`
	Provider  string `json:"provider,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// Home はトップ画面。ヘッダーのログイン状態表示に使うユーザー情報を含む。
// GET /
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	payload := pagePayload{Page: "home"}
	if session, ok := middleware.SessionFromContext(r.Context()); ok {
		payload.User = &sessionUser{Email: session.Email, Role: session.Role}
	}
	writeJSON(w, http.StatusOK, payload)
}

// Login はログイン画面。
// GET /login
func (h *PageHandler) Login(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, pagePayload{
		Page:        "login",
		CallbackURL: safeCallbackURL(q.Get("callbackUrl")),
		Verified:    q.Get("verified") == "1",
	})
}

// Register は会員登録画面。
// GET /register
func (h *PageHandler) Register(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, pagePayload{Page: "register"})
}

// Profile はプロフィール画面。ルートガードの後ろに置く。
// GET /profile
func (h *PageHandler) Profile(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	profile := &profileField{Email: session.Email, Role: session.Role}

	user, err := h.users.FindByEmail(r.Context(), session.Email)
	if err != nil {
		// ストア障害時もセッションの内容だけで表示する
		slog.Warn("failed to load profile", slog.String("error", err.Error()))
	}
	if user != nil {
		profile.Name = user.Name
		profile.Image = user.Image
		profile.Provider = user.Provider
		profile.CreatedAt = user.CreatedAt.UTC().Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, profilePayload{Page: "profile", Profile: profile})
}
