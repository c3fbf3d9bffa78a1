package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/hitoshi/radioedit/internal/importer"
	"github.com/hitoshi/radioedit/internal/model"
	"github.com/hitoshi/radioedit/internal/program"
)

// ImporterInterface はフィード取り込みのインターフェース。
type ImporterInterface interface {
	Import(ctx context.Context, rawURL string) (*importer.Result, error)
}

// ImportHandler はフィード取り込みのHTTPハンドラー。
type ImportHandler struct {
	importer ImporterInterface
}

// NewImportHandler はImportHandlerを生成する。
func NewImportHandler(imp ImporterInterface) *ImportHandler {
	return &ImportHandler{importer: imp}
}

type importRequest struct {
	URL string `json:"url"`
}

type importResponse struct {
	FeedURL  string        `json:"feed_url"`
	Added    int           `json:"added"`
	Skipped  int           `json:"skipped"`
	Programs []program.Row `json:"programs"`
}

// Import はフィードURL（またはフィードリンクを持つページ）から番組を取り込む。
// POST /api/programs/import  body: {"url": "..."}
func (h *ImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("JSONの解析に失敗しました"))
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError("URLが空です"))
		return
	}

	res, err := h.importer.Import(r.Context(), strings.TrimSpace(req.URL))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, importResponse{
		FeedURL:  res.FeedURL,
		Added:    res.Added,
		Skipped:  res.Skipped,
		Programs: nonNilRows(res.Programs),
	})
}
