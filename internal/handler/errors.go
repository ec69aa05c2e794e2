package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/boothpost/internal/appstore"
	"github.com/hitoshi/boothpost/internal/middleware"
	"github.com/hitoshi/boothpost/internal/model"
)

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
}

// handleStoreError はストア操作のエラーをAPIErrorに変換して書き込む。
func handleStoreError(w http.ResponseWriter, err error) {
	var te *appstore.TransitionError
	switch {
	case errors.As(err, &te):
		writeAPIErrorResponse(w, model.NewInvalidStatusTransitionError(te.From, te.To))
	case errors.Is(err, appstore.ErrInvalidStatus):
		writeAPIErrorResponse(w, &model.APIError{
			Code:     model.ErrCodeInvalidStatus,
			Message:  "無効なステータスです。",
			Category: "validation",
			Action:   "draft、ready、sending、sent、failed のいずれかを指定してください。",
		})
	default:
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			writeAPIErrorResponse(w, apiErr)
			return
		}
		slog.Error("内部エラーが発生しました", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
	}
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidRequest, model.ErrCodeInvalidURL, model.ErrCodeInvalidIndex,
		model.ErrCodeInvalidStatus, model.ErrCodeTooManyImages, model.ErrCodeImageMissing,
		model.ErrCodePersonInvalid, model.ErrCodeWebhookNotConfigured:
		return http.StatusBadRequest
	case model.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	case model.ErrCodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case model.ErrCodeQueueItemNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidStatusTransition:
		return http.StatusConflict
	case model.ErrCodeWebhookFailed, model.ErrCodeAnalysisFailed:
		return http.StatusBadGateway
	case model.ErrCodeAnalyzerNotConfigured:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON はリクエストボディをデコードする。失敗時はエラーレスポンスを書き込みfalseを返す。
// ボディ上限(RequestSize)を超えた場合は413を返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeAPIErrorResponse(w, model.NewPayloadTooLargeError())
			return false
		}
		writeAPIErrorResponse(w, model.NewInvalidRequestError())
		return false
	}
	return true
}

// indexParam はURLパラメータ{index}を0以上の整数として取り出す。
func indexParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "index")
	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 {
		writeAPIErrorResponse(w, model.NewInvalidIndexError(raw))
		return 0, false
	}
	return index, true
}

// limitParam はクエリパラメータlimitを読み取る。未指定・不正値はdefを返し、maxで頭打ちにする。
func limitParam(r *http.Request, def, max int) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
