package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/hitoshi/radioedit/internal/field"
	"github.com/hitoshi/radioedit/internal/model"
	"github.com/hitoshi/radioedit/internal/program"
)

// maxSaveBodyBytes は保存リクエストのボディ上限。
const maxSaveBodyBytes = 4 << 20

// ProgramServiceInterface は番組ハンドラーが必要とするサービスインターフェース。
type ProgramServiceInterface interface {
	// LoadPrograms は有効な番組一覧をpos順の外部表現で返す。
	LoadPrograms(ctx context.Context) ([]program.Row, error)
	// SavePrograms は一覧全体を保存し、保存後の一覧を返す。
	SavePrograms(ctx context.Context, payloads []program.Payload) ([]program.Row, error)
	// ListHistory は履歴スナップショットを新しい順で返す。pidが空なら全件。
	ListHistory(ctx context.Context, pid string) ([]program.Row, error)
	// MaxPrograms は番組数の上限を返す。0以下は上限なし。
	MaxPrograms() int
}

// ProgramHandler は番組一覧のHTTPハンドラー。
type ProgramHandler struct {
	service ProgramServiceInterface
}

// NewProgramHandler はProgramHandlerを生成する。
func NewProgramHandler(service ProgramServiceInterface) *ProgramHandler {
	return &ProgramHandler{service: service}
}

type programListResponse struct {
	Programs    []program.Row `json:"programs"`
	MaxPrograms int           `json:"max_programs"`
}

type saveProgramsRequest struct {
	Programs []program.Payload `json:"programs"`
}

type historyResponse struct {
	History []program.Row `json:"history"`
}

// fieldResponse は列見出しとドロップダウンの選択肢。
type fieldResponse struct {
	Key     string   `json:"key"`
	Label   string   `json:"label"`
	Options []string `json:"options,omitempty"`
	Default string   `json:"default,omitempty"`
}

type fieldsResponse struct {
	Fields      []fieldResponse `json:"fields"`
	MaxPrograms int             `json:"max_programs"`
}

// ListPrograms は有効な番組一覧を返す。
// GET /api/programs
func (h *ProgramHandler) ListPrograms(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.LoadPrograms(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, programListResponse{Programs: nonNilRows(rows), MaxPrograms: h.service.MaxPrograms()})
}

// SavePrograms は一覧全体を置き換える。
// PUT /api/programs  body: {"programs": [...]}
func (h *ProgramHandler) SavePrograms(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSaveBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var req saveProgramsRequest
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge,
				model.NewInvalidRequestError(fmt.Sprintf("リクエストボディが %d バイトを超えています", maxErr.Limit)))
			return
		}
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("JSONの解析に失敗しました"))
		return
	}
	if req.Programs == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("programs が指定されていません"))
		return
	}
	for i, p := range req.Programs {
		if p == nil {
			writeAPIErrorResponse(w, http.StatusBadRequest,
				model.NewInvalidRequestError(fmt.Sprintf("programs[%d] がオブジェクトではありません", i)))
			return
		}
	}

	rows, err := h.service.SavePrograms(r.Context(), req.Programs)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, programListResponse{Programs: nonNilRows(rows), MaxPrograms: h.service.MaxPrograms()})
}

// ListHistory は履歴を返す。
// GET /api/programs/history?pid=
func (h *ProgramHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ListHistory(r.Context(), r.URL.Query().Get("pid"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{History: nonNilRows(rows)})
}

// Fields は列見出しの順序・ラベルと、列挙フィールドの選択肢を返す。
// GET /api/programs/fields
func (h *ProgramHandler) Fields(w http.ResponseWriter, r *http.Request) {
	keys := field.OrderOf(field.FieldHeaders)
	fields := make([]fieldResponse, 0, len(keys))
	for _, key := range keys {
		f := fieldResponse{Key: key, Label: field.Label(key)}
		if name := field.Name(key); field.IsEnumerable(name) {
			f.Options = field.OrderOf(name)
			f.Default, _ = field.DefaultOf(name)
		}
		fields = append(fields, f)
	}
	writeJSON(w, http.StatusOK, fieldsResponse{Fields: fields, MaxPrograms: h.service.MaxPrograms()})
}

func nonNilRows(rows []program.Row) []program.Row {
	if rows == nil {
		return []program.Row{}
	}
	return rows
}
