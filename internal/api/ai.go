package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vietddude/gigwatch/internal/infra/llm"
)

type promptRequest struct {
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Text string `json:"text"`
}

type aiHandler struct {
	gen Generator
}

func registerAI(r chi.Router, gen Generator) {
	h := &aiHandler{gen: gen}
	r.Post("/ai/generate", h.generate)
	r.Post("/ai/json", h.generateJSON)
}

func (h *aiHandler) generate(w http.ResponseWriter, r *http.Request) {
	prompt, ok := readPrompt(w, r)
	if !ok {
		return
	}
	text, err := h.gen.Generate(r.Context(), prompt)
	if err != nil {
		llmError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{Text: text})
}

func (h *aiHandler) generateJSON(w http.ResponseWriter, r *http.Request) {
	prompt, ok := readPrompt(w, r)
	if !ok {
		return
	}
	out := map[string]any{}
	if err := h.gen.GenerateJSON(r.Context(), prompt, &out); err != nil {
		llmError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func readPrompt(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request body")
		return "", false
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "", "prompt is required")
		return "", false
	}
	return req.Prompt, true
}

func llmError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "not_configured", err.Error())
	case errors.Is(err, llm.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "", err.Error())
	default:
		writeError(w, http.StatusBadGateway, "", err.Error())
	}
}
