package handler

import (
	"net/http"
	"strings"

	"github.com/hitoshi/boothpost/internal/middleware"
	"github.com/hitoshi/boothpost/internal/model"
	"github.com/hitoshi/boothpost/internal/persondb"
)

// PersonHandler は人物データベースのHTTPハンドラー。
type PersonHandler struct {
	persons PersonDirectory
}

// NewPersonHandler はPersonHandlerを生成する。
func NewPersonHandler(persons PersonDirectory) *PersonHandler {
	return &PersonHandler{persons: persons}
}

// Search は名前またはアカウントで人物を検索する。qが空の場合は空配列を返す。
// GET /api/persons?q=&limit=
func (h *PersonHandler) Search(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r, persondb.DefaultLimit, persondb.MaxRecords)
	middleware.WriteJSON(w, http.StatusOK, h.persons.Search(r.URL.Query().Get("q"), limit))
}

// Recent は最近使った人物を返す。
// GET /api/persons/recent?limit=
func (h *PersonHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r, persondb.DefaultLimit, persondb.MaxRecords)
	middleware.WriteJSON(w, http.StatusOK, h.persons.GetRecent(limit))
}

// Add は人物を追加または更新する。
// POST /api/persons
func (h *PersonHandler) Add(w http.ResponseWriter, r *http.Request) {
	var in model.PersonInput
	if !decodeJSON(w, r, &in) {
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Account = strings.TrimSpace(in.Account)
	if in.Name == "" && in.Account == "" {
		writeAPIErrorResponse(w, model.NewPersonInvalidError())
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, h.persons.Add(r.Context(), in))
}
