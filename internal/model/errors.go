package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, queue, webhook, upstream, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest          = "INVALID_REQUEST"
	ErrCodeInvalidURL              = "INVALID_URL"
	ErrCodeSSRFBlocked             = "SSRF_BLOCKED"
	ErrCodeQueueItemNotFound       = "QUEUE_ITEM_NOT_FOUND"
	ErrCodeInvalidIndex            = "INVALID_INDEX"
	ErrCodeInvalidStatus           = "INVALID_STATUS"
	ErrCodeInvalidStatusTransition = "INVALID_STATUS_TRANSITION"
	ErrCodeTooManyImages           = "TOO_MANY_IMAGES"
	ErrCodeWebhookNotConfigured    = "WEBHOOK_NOT_CONFIGURED"
	ErrCodeWebhookFailed           = "WEBHOOK_FAILED"
	ErrCodeAnalyzerNotConfigured   = "ANALYZER_NOT_CONFIGURED"
	ErrCodeAnalysisFailed          = "ANALYSIS_FAILED"
	ErrCodeImageMissing            = "IMAGE_MISSING"
	ErrCodePersonInvalid           = "PERSON_INVALID"
	ErrCodePayloadTooLarge         = "PAYLOAD_TOO_LARGE"
)

// NewInvalidRequestError はリクエストボディ解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
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
		Action:   "公開されているWebhookのURLを入力してください。ローカルネットワークやプライベートIPへの送信は許可されていません。",
	}
}

// NewQueueItemNotFoundError はキューアイテム未検出エラーを生成する。
func NewQueueItemNotFoundError(index int) *APIError {
	return &APIError{
		Code:     ErrCodeQueueItemNotFound,
		Message:  fmt.Sprintf("指定された位置の投稿が見つかりません: %d", index),
		Category: "queue",
		Action:   "キューを再読み込みしてから操作してください。",
	}
}

// NewInvalidIndexError はインデックス形式エラーを生成する。
func NewInvalidIndexError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidIndex,
		Message:  fmt.Sprintf("無効なインデックスです: %s", raw),
		Category: "validation",
		Action:   "0以上の整数を指定してください。",
	}
}

// NewInvalidStatusError は未知のステータス値エラーを生成する。
func NewInvalidStatusError(status PostStatus) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効なステータスです: %s", status),
		Category: "validation",
		Action:   "draft、ready、sending、sent、failed のいずれかを指定してください。",
	}
}

// NewInvalidStatusTransitionError は許可されていない状態遷移エラーを生成する。
func NewInvalidStatusTransitionError(from, to PostStatus) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatusTransition,
		Message:  fmt.Sprintf("ステータスを %s から %s に変更できません。", from, to),
		Category: "queue",
		Action:   "ブース名・人物名・コメントを入力してから準備完了にしてください。",
	}
}

// NewTooManyImagesError は画像枚数超過エラーを生成する。
func NewTooManyImagesError(count int) *APIError {
	return &APIError{
		Code:     ErrCodeTooManyImages,
		Message:  fmt.Sprintf("画像は最大%d枚までです: %d枚", MaxImagesPerPost, count),
		Category: "validation",
		Action:   "画像の枚数を減らしてください。",
	}
}

// NewWebhookNotConfiguredError はWebhook URL未設定エラーを生成する。
func NewWebhookNotConfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeWebhookNotConfigured,
		Message:  "Webhook URLが設定されていません。",
		Category: "webhook",
		Action:   "設定画面でMake.comのWebhook URLを入力してください。",
	}
}

// NewWebhookFailedError はWebhook送信失敗エラーを生成する。
func NewWebhookFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeWebhookFailed,
		Message:  "Webhookへの送信に失敗しました。",
		Category: "webhook",
		Action:   "Webhookの設定を確認し、再送信してください。",
	}
}

// NewAnalyzerNotConfiguredError は画像解析サービス未設定エラーを生成する。
func NewAnalyzerNotConfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeAnalyzerNotConfigured,
		Message:  "画像解析サービスが設定されていません。",
		Category: "upstream",
		Action:   "管理者にANALYZER_URLの設定を依頼してください。",
	}
}

// NewAnalysisFailedError は画像解析失敗エラーを生成する。
func NewAnalysisFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeAnalysisFailed,
		Message:  fmt.Sprintf("画像解析に失敗しました: %s", reason),
		Category: "upstream",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewImageMissingError は画像未添付エラーを生成する。
func NewImageMissingError() *APIError {
	return &APIError{
		Code:     ErrCodeImageMissing,
		Message:  "画像が添付されていません。",
		Category: "validation",
		Action:   "画像を選択してから再度お試しください。",
	}
}

// NewPersonInvalidError は人物入力の検証エラーを生成する。
func NewPersonInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodePersonInvalid,
		Message:  "人物名またはアカウントが空です。",
		Category: "validation",
		Action:   "名前とアカウントのどちらかを入力してください。",
	}
}

// NewPayloadTooLargeError はリクエストボディの上限超過エラーを生成する。
func NewPayloadTooLargeError() *APIError {
	return &APIError{
		Code:     ErrCodePayloadTooLarge,
		Message:  "リクエストボディが大きすぎます。",
		Category: "validation",
		Action:   "画像の枚数やサイズを減らして再度お試しください。",
	}
}
