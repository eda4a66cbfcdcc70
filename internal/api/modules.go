package api

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/nerrad567/module-manager/internal/module"
)

// maxFormMemory bounds multipart parsing; larger parts spill to disk.
const maxFormMemory = 32 << 10

// moduleUpdateRequest is the JSON body for PUT /modules/{id}.
type moduleUpdateRequest struct {
	On          bool   `json:"on"`
	Color       string `json:"color"`
	ColorRandom bool   `json:"color_random"`
	Animation   string `json:"animation"`
	Number      *int   `json:"number"`
	Place       string `json:"place"`
}

func (req moduleUpdateRequest) edit() module.Edit {
	return module.Edit{
		On:          req.On,
		Color:       req.Color,
		ColorRandom: req.ColorRandom,
		Animation:   req.Animation,
		Number:      req.Number,
		Place:       req.Place,
	}
}

// handleListModules returns all modules with per-type counts.
func (s *Server) handleListModules(w http.ResponseWriter, r *http.Request) {
	overview, err := s.modules.Overview(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list modules")
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// handleGetModule returns one module.
func (s *Server) handleGetModule(w http.ResponseWriter, r *http.Request) {
	id, ok := moduleID(w, r)
	if !ok {
		return
	}

	m, err := s.modules.Get(r.Context(), id)
	if err != nil {
		s.writeModuleError(w, err, "failed to get module")
		return
	}

	s.logger.Debug("Module Edit Page Accessed",
		"description", fmt.Sprintf("user %s opened module %d (%s)", actorFromContext(r.Context()), m.ID, m.Place),
		"module_id", m.ID, "user", actorFromContext(r.Context()))
	writeJSON(w, http.StatusOK, m)
}

// handleUpdateModule applies an edit and pushes the new configuration.
//
// The body is either JSON (moduleUpdateRequest) or the edit form fields:
// is_power_off (present means on), is_color_random, color, animation,
// number and place.
func (s *Server) handleUpdateModule(w http.ResponseWriter, r *http.Request) {
	id, ok := moduleID(w, r)
	if !ok {
		return
	}

	var edit module.Edit
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")) //nolint:errcheck // empty type falls through to JSON
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := parseForm(r, mediaType); err != nil {
			writeBadRequest(w, "invalid form body")
			return
		}
		var numErr error
		edit, numErr = formEdit(r.PostForm)
		if numErr != nil {
			// A malformed number only matters for numeric modules.
			m, err := s.modules.Get(r.Context(), id)
			if err != nil {
				s.writeModuleError(w, err, "failed to update module")
				return
			}
			if m.IsNumeric() {
				writeValidationError(w, numErr.Error())
				return
			}
		}
	default:
		var req moduleUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
		edit = req.edit()
	}

	updated, err := s.modules.Update(r.Context(), id, edit, actorFromContext(r.Context()))
	if err != nil {
		s.writeModuleError(w, err, "unknown error updating the module")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteModule switches the device off and removes it.
func (s *Server) handleDeleteModule(w http.ResponseWriter, r *http.Request) {
	id, ok := moduleID(w, r)
	if !ok {
		return
	}

	if err := s.modules.Delete(r.Context(), id, actorFromContext(r.Context())); err != nil {
		s.writeModuleError(w, err, "unknown error deleting the module")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// formEdit maps the edit form onto module.Edit. A number that is not a
// plain run of digits is reported separately so the caller can decide
// whether it applies.
func formEdit(form url.Values) (module.Edit, error) {
	edit := module.Edit{
		On:          form.Has("is_power_off"),
		ColorRandom: form.Has("is_color_random"),
		Color:       form.Get("color"),
		Animation:   form.Get("animation"),
		Place:       form.Get("place"),
	}

	if !form.Has("number") {
		return edit, nil
	}
	raw := form.Get("number")
	if !isDigits(raw) {
		return edit, fmt.Errorf("%w: must be a valid integer", module.ErrInvalidNumber)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return edit, fmt.Errorf("%w: must be a valid integer", module.ErrInvalidNumber)
	}
	edit.Number = &n
	return edit, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// parseForm parses urlencoded or multipart bodies into r.PostForm.
func parseForm(r *http.Request, mediaType string) error {
	if mediaType == "multipart/form-data" {
		return r.ParseMultipartForm(maxFormMemory)
	}
	return r.ParseForm()
}

// moduleID parses the {id} path parameter, writing a 400 on failure.
func moduleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, "invalid module id")
		return 0, false
	}
	return id, true
}

// writeModuleError maps module errors to responses. Persistence failures get
// a generic message; the service has already logged the detail.
func (s *Server) writeModuleError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, module.ErrModuleNotFound):
		writeNotFound(w, "module not found")
	case module.IsValidationError(err):
		writeValidationError(w, err.Error())
	default:
		writeInternalError(w, message)
	}
}
