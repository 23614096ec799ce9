package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/koustreak/arcforge/internal/errs"
	"github.com/koustreak/arcforge/internal/model"
	"github.com/koustreak/arcforge/internal/query"
)

type entityInfo struct {
	Name    string   `json:"name"`
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	renderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listEntities(w http.ResponseWriter, _ *http.Request) {
	metas := s.reg.Entities()
	out := make([]entityInfo, 0, len(metas))
	for _, m := range metas {
		out = append(out, entityInfo{Name: m.Name(), Table: m.Table(), Columns: m.Columns()})
	}
	renderJSON(w, http.StatusOK, out)
}

// list runs a query built from the URL parameters. A repeated parameter is
// joined with commas, so ?select=a&select=b equals ?select=a,b.
func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	params := make(map[string]any, len(r.URL.Query()))
	for k, vs := range r.URL.Query() {
		params[k] = strings.Join(vs, ",")
	}
	s.runQuery(w, r, params)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	params, err := decodeBody(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	s.runQuery(w, r, params)
}

func (s *Server) runQuery(w http.ResponseWriter, r *http.Request, params map[string]any) {
	spec, err := query.ParseParams(params)
	if err != nil {
		renderError(w, r, err)
		return
	}
	res, err := s.eng.Query(r.Context(), entityFrom(r), spec)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, res)
}

func (s *Server) read(w http.ResponseWriter, r *http.Request) {
	meta := entityFrom(r)
	e, err := s.eng.Read(r.Context(), meta, chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	if e == nil {
		renderMessage(w, http.StatusNotFound, "not_found", meta.Name()+" "+chi.URLParam(r, "id")+" not found")
		return
	}
	renderJSON(w, http.StatusOK, e)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	e, err := s.entityFromBody(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	if err := s.eng.Save(r.Context(), e); err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusCreated, e)
}

// update takes the key from the path; a key in the body is overridden.
func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	e, err := s.entityFromBody(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	e.SetID(chi.URLParam(r, "id"))
	if err := s.eng.Update(r.Context(), e); err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, e)
}

func (s *Server) remove(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.Delete(r.Context(), entityFrom(r), chi.URLParam(r, "id")); err != nil {
		renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) entityFromBody(r *http.Request) (*model.Entity, error) {
	attrs, err := decodeBody(r)
	if err != nil {
		return nil, err
	}
	return entityFrom(r).New(attrs)
}

// decodeBody reads a JSON object, keeping numbers as json.Number so integer
// columns are not widened to float64.
func decodeBody(r *http.Request) (map[string]any, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r.Body); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "read request body", err)
	}
	if buf.Len() == 0 {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(&buf)
	dec.UseNumber()
	var attrs map[string]any
	if err := dec.Decode(&attrs); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "request body must be a JSON object", err)
	}
	if attrs == nil {
		attrs = map[string]any{}
	}
	return attrs, nil
}
