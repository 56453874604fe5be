package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/lci/lci-lookup/internal/domain/model"
	apperrors "github.com/lci/lci-lookup/internal/errors"
	"github.com/lci/lci-lookup/internal/service"
)

// RecordsService is what the record handlers need from service.RecordService.
type RecordsService interface {
	Create(ctx context.Context, req model.CreateRecordRequest) (*model.Record, error)
	Search(ctx context.Context, req model.SearchRecordsRequest) ([]*model.Record, error)
	Counts(ctx context.Context) (service.ListCounts, error)
}

// RecordHandlers serves the home page, record submission and search.
type RecordHandlers struct {
	Svc    RecordsService
	T      *TemplateRenderer
	Logger *slog.Logger
}

func (h *RecordHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// homeView is the home page content.
type homeView struct {
	Counts     service.ListCounts
	Form       model.CreateRecordRequest
	FieldError string
	SearchTerm string
	Searched   bool
	Results    []*model.Record
}

// Home renders list counts, the submission form and the search box.
// GET /.
func (h *RecordHandlers) Home(w http.ResponseWriter, r *http.Request) {
	data := NewPageData(r, PageMeta{Title: "LCI Lookup", CurrentPage: PageHome})
	switch model.RecordList(r.URL.Query().Get("added")) {
	case model.ShortList:
		data.Flash = "Record saved to the short list."
	case model.LongList:
		data.Flash = "Record saved to the long list."
	}
	h.renderHome(w, r, http.StatusOK, data, homeView{})
}

// Dashboard is kept for old bookmarks.
// GET /dashboard.
func (h *RecordHandlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, PathHome, http.StatusMovedPermanently)
}

// SubmitRecord files a record into the short or long list.
// POST /submit-record (form or JSON).
func (h *RecordHandlers) SubmitRecord(w http.ResponseWriter, r *http.Request) {
	var req model.CreateRecordRequest
	if isJSONRequest(r) {
		if !DecodeJSON(w, r, &req) {
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_form", Err: err})
			return
		}
		req = model.CreateRecordRequest{
			NID:  r.PostFormValue("NID"),
			LIC:  r.PostFormValue("LIC"),
			Name: r.PostFormValue("name"),
		}
	}

	rec, err := h.Svc.Create(r.Context(), req)
	if err != nil {
		h.logFailure(r, "record create failed", err)
		if wantsJSON(r) {
			WriteAppError(w, err)
			return
		}
		data := NewPageData(r, PageMeta{Title: "LCI Lookup", CurrentPage: PageHome})
		data.Error = messageForError(err)
		h.renderHome(w, r, statusForError(err), data, homeView{Form: req, FieldError: apperrors.GetField(err)})
		return
	}

	if wantsJSON(r) {
		WriteJSON(w, http.StatusCreated, map[string]any{
			"message": "Record saved successfully",
			"record":  rec,
		})
		return
	}
	q := url.Values{}
	q.Set("added", string(rec.List))
	http.Redirect(w, r, PathHome+"?"+q.Encode(), http.StatusSeeOther)
}

// Search matches a term against both lists.
// POST /search (form or JSON {"searchTerm": "..."}).
func (h *RecordHandlers) Search(w http.ResponseWriter, r *http.Request) {
	var req model.SearchRecordsRequest
	if isJSONRequest(r) {
		if !DecodeJSON(w, r, &req) {
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_form", Err: err})
			return
		}
		req.Term = r.PostFormValue("searchTerm")
	}

	results, err := h.Svc.Search(r.Context(), req)
	if err != nil {
		h.logFailure(r, "record search failed", err)
		if wantsJSON(r) {
			WriteAppError(w, err)
			return
		}
		data := NewPageData(r, PageMeta{Title: "LCI Lookup", CurrentPage: PageHome})
		data.Error = messageForError(err)
		h.renderHome(w, r, statusForError(err), data, homeView{SearchTerm: req.Term})
		return
	}
	if results == nil {
		results = []*model.Record{}
	}

	if wantsJSON(r) {
		WriteJSON(w, http.StatusOK, map[string]any{"results": results})
		return
	}
	data := NewPageData(r, PageMeta{Title: "Search results", CurrentPage: PageHome})
	h.renderHome(w, r, http.StatusOK, data, homeView{SearchTerm: req.Term, Searched: true, Results: results})
}

// renderHome fills in list counts; a count failure degrades to zero counts with a logged error.
func (h *RecordHandlers) renderHome(w http.ResponseWriter, r *http.Request, status int, data PageData, view homeView) {
	counts, err := h.Svc.Counts(r.Context())
	if err != nil {
		h.logger().ErrorContext(r.Context(), "record counts failed", "error", err)
	}
	view.Counts = counts
	data.Content = view
	renderPage(w, h.T, status, data)
}

func (h *RecordHandlers) logFailure(r *http.Request, msg string, err error) {
	level := slog.LevelError
	if status := statusForError(err); status < http.StatusInternalServerError {
		level = slog.LevelInfo
	}
	h.logger().Log(r.Context(), level, msg, "error", err)
}
