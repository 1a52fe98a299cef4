package handler

import (
	"net/http"

	"github.com/jeanikt/uniconnect/internal/model"
	"github.com/jeanikt/uniconnect/internal/preferences"
	"github.com/jeanikt/uniconnect/internal/repository"
)

// storeResolver はリクエストに対応する設定ストアを返す。
// 解決できない場合はレスポンスを書き込んでfalseを返す。
type storeResolver func(w http.ResponseWriter, r *http.Request) (preferences.Store, bool)

// PreferencesHandler はテーマと言語の設定を扱うHTTPハンドラー。
// APIモードではDBに、WebモードではCookieに保存する。
type PreferencesHandler struct {
	resolve storeResolver
}

// NewPreferencesHandler はログインユーザーの設定をDBに保存するハンドラーを生成する。
func NewPreferencesHandler(repo repository.PreferencesRepository) *PreferencesHandler {
	return &PreferencesHandler{
		resolve: func(w http.ResponseWriter, r *http.Request) (preferences.Store, bool) {
			user, ok := currentUser(w, r)
			if !ok {
				return nil, false
			}
			return preferences.NewRepositoryStore(repo, user.ID), true
		},
	}
}

// NewCookiePreferencesHandler はブラウザのCookieに設定を保存するハンドラーを生成する。
func NewCookiePreferencesHandler(opts preferences.CookieOptions) *PreferencesHandler {
	return &PreferencesHandler{
		resolve: func(w http.ResponseWriter, r *http.Request) (preferences.Store, bool) {
			return preferences.NewCookieStore(w, r, opts), true
		},
	}
}

type updatePreferencesRequest struct {
	Theme    string `json:"theme" validate:"omitempty,oneof=light dark"`
	Language string `json:"language" validate:"omitempty,oneof=pt-BR en-US"`
}

type setLanguageRequest struct {
	Language string `json:"language" validate:"required,oneof=pt-BR en-US"`
}

// appStateResponse はWebモードで子ページに渡す状態。
type appStateResponse struct {
	User        verifyUser          `json:"user"`
	Preferences preferencesResponse `json:"preferences"`
}

// GetPreferences は現在の設定を返す。
// GET /api/preferences
func (h *PreferencesHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	state, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toPreferencesResponse(state.Snapshot()))
}

// UpdatePreferences は指定された項目のみを更新する。
// PUT /api/preferences
func (h *PreferencesHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req updatePreferencesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	state, ok := h.load(w, r)
	if !ok {
		return
	}

	prefs, err := state.Update(r.Context(), model.Theme(req.Theme), model.Language(req.Language))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPreferencesResponse(prefs))
}

// ToggleTheme はlightとdarkを切り替える。
// POST /api/preferences/theme/toggle, POST /app/theme/toggle
func (h *PreferencesHandler) ToggleTheme(w http.ResponseWriter, r *http.Request) {
	state, ok := h.load(w, r)
	if !ok {
		return
	}

	if _, err := state.ToggleTheme(r.Context()); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPreferencesResponse(state.Snapshot()))
}

// SetLanguage は表示言語を変更する。
// PUT /app/language
func (h *PreferencesHandler) SetLanguage(w http.ResponseWriter, r *http.Request) {
	var req setLanguageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	state, ok := h.load(w, r)
	if !ok {
		return
	}

	if err := state.SetLanguage(r.Context(), model.Language(req.Language)); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPreferencesResponse(state.Snapshot()))
}

// AppState はガード通過後のユーザーと設定をまとめて返す。
// GET /app/state
func (h *PreferencesHandler) AppState(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	state, ok := h.load(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, appStateResponse{
		User: verifyUser{
			ID:       user.ID,
			Email:    user.Email,
			Username: user.Username,
			IsAdmin:  user.IsAdmin,
		},
		Preferences: toPreferencesResponse(state.Snapshot()),
	})
}

func (h *PreferencesHandler) load(w http.ResponseWriter, r *http.Request) (*preferences.State, bool) {
	store, ok := h.resolve(w, r)
	if !ok {
		return nil, false
	}
	state, err := preferences.Load(r.Context(), store)
	if err != nil {
		handleServiceError(w, err)
		return nil, false
	}
	return state, true
}
