package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/hitoshi/boothpost/internal/middleware"
	"github.com/hitoshi/boothpost/internal/model"
	"github.com/hitoshi/boothpost/internal/security"
)

// StateHandler はウィザード状態・イベント情報・設定のHTTPハンドラー。
type StateHandler struct {
	store     AppStore
	validator URLValidator
}

// NewStateHandler はStateHandlerを生成する。
// validatorがnilの場合はWebhook URLの事前検証を行わない。
func NewStateHandler(store AppStore, validator URLValidator) *StateHandler {
	return &StateHandler{store: store, validator: validator}
}

type setStepRequest struct {
	Step *int `json:"step"`
}

// GetState はストア全体のスナップショットを返す。
// GET /api/state
func (h *StateHandler) GetState(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.store.State())
}

// SetStep はウィザードのステップを設定する。
// PUT /api/state/step
func (h *StateHandler) SetStep(w http.ResponseWriter, r *http.Request) {
	var req setStepRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Step == nil {
		writeAPIErrorResponse(w, model.NewInvalidRequestError())
		return
	}

	h.store.SetStep(*req.Step)
	middleware.WriteJSON(w, http.StatusOK, map[string]int{"step": *req.Step})
}

// PatchEventInfo は旧形式のイベント情報を部分更新する。
// PATCH /api/state/event-info
func (h *StateHandler) PatchEventInfo(w http.ResponseWriter, r *http.Request) {
	var update model.EventInfoUpdate
	if !decodeJSON(w, r, &update) {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.store.SetEventInfo(r.Context(), update))
}

// SetCurrentEvent は現在のバッチのイベント情報を設定する。
// PUT /api/state/current-event
func (h *StateHandler) SetCurrentEvent(w http.ResponseWriter, r *http.Request) {
	var info model.EventInfo
	if !decodeJSON(w, r, &info) {
		return
	}
	h.store.SetCurrentEventInfo(r.Context(), info)
	middleware.WriteJSON(w, http.StatusOK, info)
}

// ClearCurrentEvent は現在のバッチのイベント情報をクリアする。
// DELETE /api/state/current-event
func (h *StateHandler) ClearCurrentEvent(w http.ResponseWriter, r *http.Request) {
	h.store.ClearCurrentEventInfo()
	w.WriteHeader(http.StatusNoContent)
}

// GetSettings はアプリ設定を返す。
// GET /api/settings
func (h *StateHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.store.Settings())
}

// PatchSettings はアプリ設定を部分更新する。
// Webhook URLが指定された場合はSSRFガードで検証する。空文字は未設定に戻す操作として許可する。
// PATCH /api/settings
func (h *StateHandler) PatchSettings(w http.ResponseWriter, r *http.Request) {
	var update model.SettingsUpdate
	if !decodeJSON(w, r, &update) {
		return
	}

	if update.WebhookURL != nil {
		trimmed := strings.TrimSpace(*update.WebhookURL)
		update.WebhookURL = &trimmed
		if trimmed != "" && h.validator != nil {
			if err := h.validator.ValidateURL(trimmed); err != nil {
				var blocked *security.BlockedError
				if errors.As(err, &blocked) {
					writeAPIErrorResponse(w, model.NewSSRFBlockedError())
					return
				}
				writeAPIErrorResponse(w, model.NewInvalidURLError(err.Error()))
				return
			}
		}
	}

	middleware.WriteJSON(w, http.StatusOK, h.store.SetSettings(r.Context(), update))
}
