package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vietddude/gigwatch/internal/datastream"
)

type streamsHandler struct {
	svc *datastream.Service
}

func registerStreams(r chi.Router, svc *datastream.Service) {
	h := &streamsHandler{svc: svc}
	r.Route("/streams", func(r chi.Router) {
		r.Get("/schemas", h.listSchemas)
		r.Post("/schemas", h.registerSchema)
		r.Post("/{schemaId}/records", h.publish)
		r.Get("/{schemaId}/publishers/{publisher}/records", h.readAll)
		r.Get("/{schemaId}/publishers/{publisher}/records/{dataId}", h.read)
	})
}

type registerSchemaRequest struct {
	Name       string             `json:"name"`
	Definition string             `json:"definition"`
	Fields     []datastream.Field `json:"fields"`
}

type registerSchemaResponse struct {
	SchemaID   string `json:"schemaId"`
	Definition string `json:"definition"`
}

func (h *streamsHandler) listSchemas(w http.ResponseWriter, r *http.Request) {
	schemas, err := h.svc.Schemas(r.Context())
	if err != nil {
		streamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schemas)
}

func (h *streamsHandler) registerSchema(w http.ResponseWriter, r *http.Request) {
	var req registerSchemaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request body")
		return
	}

	schema := datastream.Schema{Name: req.Name, Fields: req.Fields}
	if strings.TrimSpace(req.Definition) != "" {
		parsed, err := datastream.ParseSchema(req.Name, req.Definition)
		if err != nil {
			streamError(w, err)
			return
		}
		schema = parsed
	}

	id, err := h.svc.Register(r.Context(), schema)
	if err != nil {
		streamError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerSchemaResponse{SchemaID: id, Definition: schema.Canonical()})
}

type publishEntry struct {
	DataID string         `json:"dataId"`
	Values map[string]any `json:"values"`
}

type publishRequest struct {
	Publisher string         `json:"publisher"`
	DataID    string         `json:"dataId"`
	Values    map[string]any `json:"values"`
	Records   []publishEntry `json:"records"`
}

type publishResponse struct {
	DataIDs []string `json:"dataIds"`
}

func (h *streamsHandler) publish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	dec := json.NewDecoder(r.Body)
	// uint256 values must not pass through float64
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request body")
		return
	}

	entries := make([]datastream.Entry, 0, len(req.Records)+1)
	for _, rec := range req.Records {
		entries = append(entries, datastream.Entry{DataID: rec.DataID, Values: rec.Values})
	}
	if len(entries) == 0 {
		entries = append(entries, datastream.Entry{DataID: req.DataID, Values: req.Values})
	}
	for _, e := range entries {
		if e.DataID == "" {
			writeError(w, http.StatusBadRequest, "", "dataId is required")
			return
		}
	}

	ids, err := h.svc.PublishBatch(r.Context(), req.Publisher, chi.URLParam(r, "schemaId"), entries)
	if err != nil {
		streamError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, publishResponse{DataIDs: ids})
}

func (h *streamsHandler) read(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Read(r.Context(),
		chi.URLParam(r, "schemaId"),
		chi.URLParam(r, "publisher"),
		chi.URLParam(r, "dataId"),
	)
	if err != nil {
		streamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *streamsHandler) readAll(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.ReadAll(r.Context(), chi.URLParam(r, "schemaId"), chi.URLParam(r, "publisher"))
	if err != nil {
		streamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func streamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, datastream.ErrSchemaNotFound), errors.Is(err, datastream.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "", err.Error())
	case errors.Is(err, datastream.ErrInvalidSchema), errors.Is(err, datastream.ErrInvalidValue):
		writeError(w, http.StatusBadRequest, "", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "", err.Error())
	}
}
