// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, catalog, rental, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAuthFailed       = "AUTH_FAILED"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeBookNotFound     = "BOOK_NOT_FOUND"
	ErrCodeBookUnavailable  = "BOOK_UNAVAILABLE"
	ErrCodeBookHasHistory   = "BOOK_HAS_HISTORY"
	ErrCodeRentalConflict   = "RENTAL_CONFLICT"
	ErrCodeDuplicateEmail   = "DUPLICATE_EMAIL"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeUserNotFound     = "USER_NOT_FOUND"
	ErrCodeAuthorNotFound   = "AUTHOR_NOT_FOUND"
	ErrCodeCategoryNotFound = "CATEGORY_NOT_FOUND"
)

// NewAuthFailedError は認証失敗エラーを生成する。
// 存在しないメールアドレスとパスワード不一致を区別しない。
func NewAuthFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailed,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewUnauthorizedError は権限不足エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者アカウントでログインしてください。",
	}
}

// NewBookNotFoundError は蔵書未検出エラーを生成する。
func NewBookNotFoundError(bookID string) *APIError {
	return &APIError{
		Code:     ErrCodeBookNotFound,
		Message:  fmt.Sprintf("指定された蔵書が見つかりません: %s", bookID),
		Category: "catalog",
		Action:   "蔵書IDを確認してください。",
	}
}

// NewBookUnavailableError は貸出可能冊数が0の蔵書への貸出エラーを生成する。
func NewBookUnavailableError(bookID string) *APIError {
	return &APIError{
		Code:     ErrCodeBookUnavailable,
		Message:  fmt.Sprintf("この蔵書は現在すべて貸出中です: %s", bookID),
		Category: "rental",
		Action:   "返却されるまでお待ちください。",
	}
}

// NewBookHasHistoryError は貸出記録が参照している蔵書の削除エラーを生成する。
func NewBookHasHistoryError(bookID string) *APIError {
	return &APIError{
		Code:     ErrCodeBookHasHistory,
		Message:  fmt.Sprintf("貸出記録が存在するため削除できません: %s", bookID),
		Category: "catalog",
		Action:   "貸出記録のある蔵書は削除できません。",
	}
}

// NewRentalConflictError は同一蔵書への貸出操作が競合した場合のエラーを生成する。
func NewRentalConflictError(bookID string) *APIError {
	return &APIError{
		Code:     ErrCodeRentalConflict,
		Message:  fmt.Sprintf("貸出操作が競合しました: %s", bookID),
		Category: "rental",
		Action:   "少し待ってから再度お試しください。",
	}
}

// NewDuplicateEmailError はメールアドレス重複エラーを生成する。
func NewDuplicateEmailError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  fmt.Sprintf("このメールアドレスは既に登録されています: %s", email),
		Category: "validation",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewValidationFailedError は入力値検証エラーを生成する。
func NewValidationFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力内容に誤りがあります: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewAuthorNotFoundError は著者未検出エラーを生成する。
func NewAuthorNotFoundError(authorID string) *APIError {
	return &APIError{
		Code:     ErrCodeAuthorNotFound,
		Message:  fmt.Sprintf("指定された著者が見つかりません: %s", authorID),
		Category: "catalog",
		Action:   "著者IDを確認してください。",
	}
}

// NewCategoryNotFoundError は分類未検出エラーを生成する。
func NewCategoryNotFoundError(categoryID string) *APIError {
	return &APIError{
		Code:     ErrCodeCategoryNotFound,
		Message:  fmt.Sprintf("指定された分類が見つかりません: %s", categoryID),
		Category: "catalog",
		Action:   "分類IDを確認してください。",
	}
}
