// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, social, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeSignInDenied         = "SIGN_IN_DENIED"
	ErrCodeEmailTaken           = "EMAIL_TAKEN"
	ErrCodeUsernameTaken        = "USERNAME_TAKEN"
	ErrCodeInvalidMagicLink     = "INVALID_MAGIC_LINK"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodePostNotFound         = "POST_NOT_FOUND"
	ErrCodeInvalidPost          = "INVALID_POST"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeCommunityNotFound    = "COMMUNITY_NOT_FOUND"
	ErrCodeCommunityExists      = "COMMUNITY_EXISTS"
	ErrCodeConversationNotFound = "CONVERSATION_NOT_FOUND"
	ErrCodeInvalidMessage       = "INVALID_MESSAGE"
	ErrCodeInvalidPreferences   = "INVALID_PREFERENCES"
	ErrCodeSelfFollow           = "SELF_FOLLOW"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication is required.",
		Category: "auth",
		Action:   "Sign in and try again.",
	}
}

// NewInvalidRequestError はリクエスト形式エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("Invalid request: %s", reason),
		Category: "validation",
		Action:   "Check the request body and try again.",
	}
}

// NewInvalidCredentialsError はメールアドレスまたはパスワード不一致のエラーを生成する。
// どちらが誤っているかは区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password.",
		Category: "auth",
		Action:   "Check your credentials and try again.",
	}
}

// NewSignInDeniedError は認証済みだがサインインが許可されないIDのエラーを生成する。
func NewSignInDeniedError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeSignInDenied,
		Message:  fmt.Sprintf("Sign-in with %s is not allowed for this account.", provider),
		Category: "auth",
		Action:   "Use an account that has been granted access.",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "This email is already registered.",
		Category: "validation",
		Action:   "Sign in instead, or use another email.",
	}
}

// NewUsernameTakenError はユーザー名重複エラーを生成する。
func NewUsernameTakenError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeUsernameTaken,
		Message:  fmt.Sprintf("The username %q is already taken.", username),
		Category: "validation",
		Action:   "Choose another username.",
	}
}

// NewInvalidMagicLinkError は無効または期限切れのマジックリンクのエラーを生成する。
func NewInvalidMagicLinkError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMagicLink,
		Message:  "The sign-in link is invalid or has expired.",
		Category: "auth",
		Action:   "Request a new sign-in link.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found.",
		Category: "social",
		Action:   "Check the username.",
	}
}

// NewPostNotFoundError はポスト未検出エラーを生成する。
func NewPostNotFoundError(postID string) *APIError {
	return &APIError{
		Code:     ErrCodePostNotFound,
		Message:  fmt.Sprintf("Post not found: %s", postID),
		Category: "social",
		Action:   "The post may have been deleted.",
	}
}

// NewInvalidPostError はポスト内容の検証エラーを生成する。
func NewInvalidPostError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPost,
		Message:  fmt.Sprintf("Invalid post: %s", reason),
		Category: "validation",
		Action:   "Posts must contain between 1 and 280 characters.",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "You are not allowed to perform this action.",
		Category: "auth",
		Action:   "Only the owner can change this resource.",
	}
}

// NewCommunityNotFoundError はコミュニティ未検出エラーを生成する。
func NewCommunityNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeCommunityNotFound,
		Message:  fmt.Sprintf("Community not found: %s", id),
		Category: "social",
		Action:   "Check the community ID.",
	}
}

// NewCommunityExistsError はコミュニティ名重複エラーを生成する。
func NewCommunityExistsError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeCommunityExists,
		Message:  fmt.Sprintf("A community named %q already exists.", name),
		Category: "social",
		Action:   "Join the existing community or choose another name.",
	}
}

// NewConversationNotFoundError は会話未検出エラーを生成する。
// 参加者以外からのアクセスも存在を明かさないためこのエラーにする。
func NewConversationNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeConversationNotFound,
		Message:  fmt.Sprintf("Conversation not found: %s", id),
		Category: "social",
		Action:   "Check the conversation ID.",
	}
}

// NewInvalidMessageError はメッセージ本文の検証エラーを生成する。
func NewInvalidMessageError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMessage,
		Message:  fmt.Sprintf("Invalid message: %s", reason),
		Category: "validation",
		Action:   "Messages must contain between 1 and 2000 characters.",
	}
}

// NewInvalidPreferencesError はUI設定値の検証エラーを生成する。
func NewInvalidPreferencesError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPreferences,
		Message:  fmt.Sprintf("Invalid preferences: %s", reason),
		Category: "validation",
		Action:   "Theme must be light or dark; language must be pt-BR or en-US.",
	}
}

// NewSelfFollowError は自分自身をフォローしようとした場合のエラーを生成する。
func NewSelfFollowError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfFollow,
		Message:  "You cannot follow yourself.",
		Category: "validation",
		Action:   "Choose another user.",
	}
}
