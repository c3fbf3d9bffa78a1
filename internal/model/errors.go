// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, store, import, system
	Action   string // ユーザー向け対処方法
	Err      error  // 原因となったエラー（ストア障害時など）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeUnknownFieldValue  = "UNKNOWN_FIELD_VALUE"
	ErrCodeInvalidRecord      = "INVALID_RECORD"
	ErrCodeCapacityExceeded   = "CAPACITY_EXCEEDED"
	ErrCodeStoreUnavailable   = "STORE_UNAVAILABLE"
	ErrCodePersistenceFailure = "PERSISTENCE_FAILURE"
	ErrCodeFeedNotDetected    = "FEED_NOT_DETECTED"
	ErrCodeInvalidURL         = "INVALID_URL"
	ErrCodeSSRFBlocked        = "SSRF_BLOCKED"
	ErrCodeFetchFailed        = "FETCH_FAILED"
	ErrCodeParseFailed        = "PARSE_FAILED"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// HasCode はerrのチェーン中に指定コードのAPIErrorが含まれるかを判定する。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// NewUnknownFieldValueError は逆引きできない列挙値が指定された場合のエラーを生成する。
func NewUnknownFieldValueError(field, value string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownFieldValue,
		Message:  fmt.Sprintf("%s に指定された値 %q は使用できません。", field, value),
		Category: "validation",
		Action:   "ドロップダウンの選択肢から値を選び直してください。",
	}
}

// NewInvalidRecordError は番組レコードの形式が不正な場合のエラーを生成する。
func NewInvalidRecordError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRecord,
		Message:  fmt.Sprintf("番組データが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してから再度保存してください。",
	}
}

// NewCapacityExceededError は番組数が上限を超える場合のエラーを生成する。
func NewCapacityExceededError(limit, requested int) *APIError {
	return &APIError{
		Code:     ErrCodeCapacityExceeded,
		Message:  fmt.Sprintf("番組数が上限（%d件）を超えています: %d件", limit, requested),
		Category: "validation",
		Action:   "不要な番組を削除してから保存してください。",
	}
}

// NewStoreUnavailableError はストアの読み取りに失敗した場合のエラーを生成する。
func NewStoreUnavailableError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  "番組データの読み込みに失敗しました。",
		Category: "store",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      err,
	}
}

// NewPersistenceFailureError はストアへの書き込みに失敗した場合のエラーを生成する。
// 書き込みはアトミックに行われるため、保存前の状態が維持されている。
func NewPersistenceFailureError(err error) *APIError {
	return &APIError{
		Code:     ErrCodePersistenceFailure,
		Message:  "番組データの保存に失敗しました。変更は反映されていません。",
		Category: "store",
		Action:   "しばらく待ってから再度保存してください。",
		Err:      err,
	}
}

// NewFeedNotDetectedError はフィード未検出エラーを生成する。
func NewFeedNotDetectedError(url string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedNotDetected,
		Message:  fmt.Sprintf("指定されたURLから番組フィードを検出できませんでした: %s", url),
		Category: "import",
		Action:   "ポッドキャストのRSS/AtomフィードのURLを直接入力してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。",
	}
}

// NewFetchFailedError はフェッチ失敗エラーを生成する。
func NewFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeFetchFailed,
		Message:  fmt.Sprintf("URLの取得に失敗しました: %s", reason),
		Category: "import",
		Action:   "URLが正しいか確認し、しばらく待ってから再度お試しください。",
	}
}

// NewParseFailedError はパース失敗エラーを生成する。
func NewParseFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeParseFailed,
		Message:  "フィードの解析に失敗しました。",
		Category: "import",
		Action:   "有効なRSS/Atomフィードかどうか確認してください。",
	}
}

// NewInvalidRequestError はリクエストボディやパラメータの形式が不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエストの形式を確認してください。",
	}
}

// NewUnauthorizedError は認証トークンがない、または一致しない場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証に失敗しました。",
		Category: "auth",
		Action:   "Authorization ヘッダーに有効なトークンを指定してください。",
	}
}

// NewRateLimitedError はレート制限を超えた場合のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-After ヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
