// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jeanikt/uniconnect/internal/auth"
	"github.com/jeanikt/uniconnect/internal/middleware"
	"github.com/jeanikt/uniconnect/internal/model"
)

// maxRequestBodyBytes はJSONリクエストボディの上限。
const maxRequestBodyBytes = 1 << 20

// validate はリクエストボディの検証に使う。フィールド名はJSONタグ名で報告する。
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// usernameはURLパスに載るため英数字と"_"、"-"に限る
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return auth.ValidUsername(fl.Field().String())
	})
	return v
}

// decodeJSON はリクエストボディをdstに読み込んで検証する。
// 失敗した場合は400を書き込んでfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := dec.Decode(dst); err != nil {
		reason := "malformed JSON body"
		if errors.Is(err, io.EOF) {
			reason = "request body is empty"
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(reason))
		return false
	}

	if err := validate.Struct(dst); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(describeValidationError(err)))
		return false
	}
	return true
}

// describeValidationError は最初の検証エラーを短い説明にする。
func describeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "min", "max":
		return fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "username":
		return fmt.Sprintf("%s may only contain letters, digits, '_' and '-'", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
	}
}

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// currentUser はセッションミドルウェアが注入したユーザーを返す。
// 未認証の場合は401を書き込んでfalseを返す。
func currentUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return nil, false
	}
	return user, true
}

// viewerID は閲覧者のユーザーIDを返す。未認証の場合は空文字列。
func viewerID(r *http.Request) string {
	id, _ := middleware.UserIDFromContext(r.Context())
	return id
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidCredentials, model.ErrCodeInvalidMagicLink:
		return http.StatusUnauthorized
	case model.ErrCodeSignInDenied, model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeInvalidRequest, model.ErrCodeInvalidPost, model.ErrCodeInvalidMessage,
		model.ErrCodeInvalidPreferences, model.ErrCodeSelfFollow:
		return http.StatusBadRequest
	case model.ErrCodeEmailTaken, model.ErrCodeUsernameTaken, model.ErrCodeCommunityExists:
		return http.StatusConflict
	case model.ErrCodeUserNotFound, model.ErrCodePostNotFound,
		model.ErrCodeCommunityNotFound, model.ErrCodeConversationNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// --- レスポンス型 ---

// userResponse は本人向けのユーザー情報。
type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Bio       string    `json:"bio"`
	AvatarURL string    `json:"avatar_url"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		Name:      u.Name,
		Bio:       u.Bio,
		AvatarURL: u.AvatarURL,
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
	}
}

// publicUserResponse は他のユーザーに見せるユーザー情報。メールアドレスを含まない。
type publicUserResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

func toPublicUserResponse(u *model.User) publicUserResponse {
	return publicUserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
	}
}

type postResponse struct {
	ID          string    `json:"id"`
	AuthorID    string    `json:"author_id"`
	Author      string    `json:"author"`
	Username    string    `json:"username"`
	Content     string    `json:"content"`
	ContentHTML string    `json:"content_html"`
	Likes       int       `json:"likes"`
	Comments    int       `json:"comments"`
	Reposts     int       `json:"reposts"`
	Liked       bool      `json:"liked"`
	Reposted    bool      `json:"reposted"`
	CreatedAt   time.Time `json:"created_at"`
}

func toPostResponse(p *model.Post) postResponse {
	return postResponse{
		ID:          p.ID,
		AuthorID:    p.AuthorID,
		Author:      p.Author,
		Username:    p.Username,
		Content:     p.Content,
		ContentHTML: p.ContentHTML,
		Likes:       p.Likes,
		Comments:    p.Comments,
		Reposts:     p.Reposts,
		Liked:       p.Liked,
		Reposted:    p.Reposted,
		CreatedAt:   p.CreatedAt,
	}
}

func toPostResponses(posts []*model.Post) []postResponse {
	out := make([]postResponse, len(posts))
	for i, p := range posts {
		out[i] = toPostResponse(p)
	}
	return out
}

type preferencesResponse struct {
	Theme    model.Theme    `json:"theme"`
	Language model.Language `json:"language"`
}

func toPreferencesResponse(p model.Preferences) preferencesResponse {
	return preferencesResponse{Theme: p.Theme, Language: p.Language}
}
