package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/boothpost/internal/kotaro"
	"github.com/hitoshi/boothpost/internal/middleware"
)

// KotaroHandler は画像をKotaro-Engineへ転送するプロキシハンドラー。
type KotaroHandler struct {
	forwarder     KotaroForwarder
	maxUploadSize int64
	logger        *slog.Logger
}

// NewKotaroHandler はKotaroHandlerを生成する。
func NewKotaroHandler(forwarder KotaroForwarder, maxUploadSize int64, logger *slog.Logger) *KotaroHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &KotaroHandler{
		forwarder:     forwarder,
		maxUploadSize: maxUploadSize,
		logger:        logger,
	}
}

// proxyErrorResponse はプロキシの失敗レスポンス。
type proxyErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Proxy はmultipartのimage・name・countを上流へ転送し、上流のJSONをそのまま返す。
// imageがない場合は400、上流の失敗は500。
// POST /api/kotaro
func (h *KotaroHandler) Proxy(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadSize > 0 {
		if r.ContentLength > h.maxUploadSize {
			h.writeTooLarge(w)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeTooLarge(w)
			return
		}
		middleware.WriteJSON(w, http.StatusBadRequest, proxyErrorResponse{
			Error: "画像が添付されていません",
		})
		return
	}
	defer file.Close()

	body, err := h.forwarder.Forward(r.Context(), kotaro.Request{
		Image:       file,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Name:        r.FormValue("name"),
		Count:       r.FormValue("count"),
	})
	if err != nil {
		h.logger.Error("Kotaro-Engineへのプロキシに失敗しました", slog.String("error", err.Error()))
		middleware.WriteJSON(w, http.StatusInternalServerError, proxyErrorResponse{
			Error: "画像の処理に失敗しました",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("レスポンスの書き込みに失敗しました", slog.String("error", err.Error()))
	}
}

func (h *KotaroHandler) writeTooLarge(w http.ResponseWriter) {
	middleware.WriteJSON(w, http.StatusRequestEntityTooLarge, proxyErrorResponse{
		Error: "画像サイズが上限を超えています",
	})
}
