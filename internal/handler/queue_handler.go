package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/boothpost/internal/appstore"
	"github.com/hitoshi/boothpost/internal/middleware"
	"github.com/hitoshi/boothpost/internal/model"
	"github.com/hitoshi/boothpost/internal/status"
	"github.com/hitoshi/boothpost/internal/webhook"
)

// QueueHandler は投稿キューのHTTPハンドラー。
type QueueHandler struct {
	store    AppStore
	sender   PostSender
	analyzer ImageAnalyzer
	logger   *slog.Logger
	now      func() time.Time
}

// NewQueueHandler はQueueHandlerを生成する。
func NewQueueHandler(store AppStore, sender PostSender, analyzer ImageAnalyzer, logger *slog.Logger) *QueueHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueHandler{
		store:    store,
		sender:   sender,
		analyzer: analyzer,
		logger:   logger,
		now:      time.Now,
	}
}

type addQueueResponse struct {
	Index int            `json:"index"`
	Item  model.PostItem `json:"item"`
}

type editIndexRequest struct {
	Index *int `json:"index"`
}

type sendResponse struct {
	Success bool           `json:"success"`
	Item    model.PostItem `json:"item"`
}

// List はキュー全体を返す。
// GET /api/queue
func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.store.Queue())
}

// Add は投稿をキュー末尾に追加する。
// POST /api/queue
func (h *QueueHandler) Add(w http.ResponseWriter, r *http.Request) {
	var in model.NewPost
	if !decodeJSON(w, r, &in) {
		return
	}
	if len(in.Images) > model.MaxImagesPerPost {
		writeAPIErrorResponse(w, model.NewTooManyImagesError(len(in.Images)))
		return
	}
	if in.Status != "" && !in.Status.Valid() {
		writeAPIErrorResponse(w, model.NewInvalidStatusError(in.Status))
		return
	}
	if err := appstore.CheckInitialStatus(in); err != nil {
		handleStoreError(w, err)
		return
	}

	item := h.store.AddToQueue(in)
	middleware.WriteJSON(w, http.StatusCreated, addQueueResponse{
		Index: h.store.IndexOf(item.ID),
		Item:  item,
	})
}

// Clear はキューと編集位置をクリアする。
// DELETE /api/queue
func (h *QueueHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.store.ClearQueue()
	w.WriteHeader(http.StatusNoContent)
}

// SetEditIndex は編集対象の位置を設定する。nullで選択解除。
// PUT /api/queue/edit-index
func (h *QueueHandler) SetEditIndex(w http.ResponseWriter, r *http.Request) {
	var req editIndexRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.store.SetCurrentEditIndex(req.Index)
	middleware.WriteJSON(w, http.StatusOK, map[string]*int{"currentEditIndex": req.Index})
}

// Status はキューのステータス表示情報を導出して返す。
// GET /api/queue/status
func (h *QueueHandler) Status(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, status.Derive(h.store.Queue(), h.now()))
}

// Get は指定位置のアイテムを返す。
// GET /api/queue/{index}
func (h *QueueHandler) Get(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}
	item, found := h.store.Item(index)
	if !found {
		writeAPIErrorResponse(w, model.NewQueueItemNotFoundError(index))
		return
	}
	middleware.WriteJSON(w, http.StatusOK, item)
}

// Update は指定位置のアイテムを部分更新する。
// idとcreatedAtはリクエストに含まれていても無視する。
// PATCH /api/queue/{index}
func (h *QueueHandler) Update(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}
	var update model.PostUpdate
	if !decodeJSON(w, r, &update) {
		return
	}
	if update.Images != nil && len(*update.Images) > model.MaxImagesPerPost {
		writeAPIErrorResponse(w, model.NewTooManyImagesError(len(*update.Images)))
		return
	}
	if update.Status != nil && !update.Status.Valid() {
		writeAPIErrorResponse(w, model.NewInvalidStatusError(*update.Status))
		return
	}

	item, found, err := h.store.UpdateQueueItem(index, update)
	if !found {
		writeAPIErrorResponse(w, model.NewQueueItemNotFoundError(index))
		return
	}
	if err != nil {
		handleStoreError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, item)
}

// Remove は指定位置のアイテムを削除する。
// DELETE /api/queue/{index}
func (h *QueueHandler) Remove(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}
	if !h.store.RemoveFromQueue(index) {
		writeAPIErrorResponse(w, model.NewQueueItemNotFoundError(index))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Send は指定位置のアイテムをWebhookへ送信する。
// sendingに遷移させてから送信し、結果に応じてsentまたはfailedにする。
// 送信失敗はsuccess=falseとして200で返す。Webhook URL未設定は400。
// POST /api/queue/{index}/send
func (h *QueueHandler) Send(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}
	item, found := h.store.Item(index)
	if !found {
		writeAPIErrorResponse(w, model.NewQueueItemNotFoundError(index))
		return
	}
	if !h.sender.Configured() {
		writeAPIErrorResponse(w, model.NewWebhookNotConfiguredError())
		return
	}

	item, found, err := h.store.UpdateQueueItemByID(item.ID, statusUpdate(model.PostStatusSending))
	if !found {
		writeAPIErrorResponse(w, model.NewQueueItemNotFoundError(index))
		return
	}
	if err != nil {
		handleStoreError(w, err)
		return
	}

	sent, sendErr := h.sender.SendPost(r.Context(), item)

	final := model.PostStatusFailed
	if sent {
		final = model.PostStatusSent
	}
	updated, found, err := h.store.UpdateQueueItemByID(item.ID, statusUpdate(final))
	switch {
	case !found:
		h.logger.Warn("送信中に投稿が削除されました", slog.String("post_id", item.ID))
		updated = item
		updated.Status = final
	case err != nil:
		h.logger.Error("送信結果の反映に失敗しました",
			slog.String("post_id", item.ID),
			slog.String("error", err.Error()),
		)
	}

	if errors.Is(sendErr, webhook.ErrWebhookURLNotConfigured) {
		writeAPIErrorResponse(w, model.NewWebhookNotConfiguredError())
		return
	}
	middleware.WriteJSON(w, http.StatusOK, sendResponse{Success: sent, Item: updated})
}

// Analyze は指定位置のアイテムの画像を解析ワーカーに送り、結果をanalysisResultに保存する。
// POST /api/queue/{index}/analyze
func (h *QueueHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}
	item, found := h.store.Item(index)
	if !found {
		writeAPIErrorResponse(w, model.NewQueueItemNotFoundError(index))
		return
	}
	if h.analyzer == nil || !h.analyzer.Configured() {
		writeAPIErrorResponse(w, model.NewAnalyzerNotConfiguredError())
		return
	}

	image := webhook.StripDataURLPrefix(item.PrimaryImage())
	if image == "" {
		writeAPIErrorResponse(w, model.NewImageMissingError())
		return
	}

	result, err := h.analyzer.Analyze(r.Context(), image, item.EventInfo.Category)
	if err != nil {
		h.logger.Warn("画像解析に失敗しました",
			slog.String("post_id", item.ID),
			slog.String("error", err.Error()),
		)
		writeAPIErrorResponse(w, model.NewAnalysisFailedError("解析ワーカーが応答しませんでした"))
		return
	}

	updated, found, err := h.store.UpdateQueueItemByID(item.ID, model.PostUpdate{AnalysisResult: &result})
	if !found {
		writeAPIErrorResponse(w, model.NewQueueItemNotFoundError(index))
		return
	}
	if err != nil {
		handleStoreError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, updated)
}

func statusUpdate(s model.PostStatus) model.PostUpdate {
	return model.PostUpdate{Status: &s}
}
