package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/boothpost/internal/middleware"
)

// healthResponse はヘルスチェックのレスポンス。
type healthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
}

// NewHealthHandler はストレージへの疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func NewHealthHandler(storage Pinger, backend string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		if err := storage.Ping(ctx); err != nil {
			slog.Warn("ストレージの疎通確認に失敗しました",
				slog.String("backend", backend),
				slog.String("error", err.Error()),
			)
			middleware.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Storage: backend})
			return
		}
		middleware.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok", Storage: backend})
	}
}
