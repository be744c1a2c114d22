package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/vietddude/gigwatch/internal/indexing/readmodel"
)

type jobsHandler struct {
	models *readmodel.Accessors
}

func registerJobs(r chi.Router, models *readmodel.Accessors) {
	h := &jobsHandler{models: models}
	r.Get("/jobs/{id}", h.job)
	r.Get("/jobs/{id}/bids", h.bids)
	r.Get("/users/{address}/jobs", h.userJobs)
}

func (h *jobsHandler) job(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	job, err := h.models.Job(id).Get(r.Context())
	if err != nil {
		readError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *jobsHandler) bids(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	bids, err := h.models.Bids(id).Get(r.Context())
	if err != nil {
		readError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bids)
}

type userJobsResponse struct {
	Address string   `json:"address"`
	Role    string   `json:"role"`
	JobIDs  []uint64 `json:"jobIds"`
}

func (h *jobsHandler) userJobs(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if !common.IsHexAddress(address) {
		writeError(w, http.StatusBadRequest, "", "invalid address")
		return
	}

	role := r.URL.Query().Get("role")
	var (
		ids []uint64
		err error
	)
	switch role {
	case "", "employer":
		role = "employer"
		ids, err = h.models.EmployerJobs(address).Get(r.Context())
	case "worker":
		ids, err = h.models.WorkerJobs(address).Get(r.Context())
	default:
		writeError(w, http.StatusBadRequest, "", "role must be employer or worker")
		return
	}
	if err != nil {
		readError(w, err)
		return
	}
	if ids == nil {
		ids = []uint64{}
	}
	writeJSON(w, http.StatusOK, userJobsResponse{Address: address, Role: role, JobIDs: ids})
}

func jobID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid job id")
		return 0, false
	}
	return id, true
}

func readError(w http.ResponseWriter, err error) {
	if errors.Is(err, readmodel.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "", err.Error())
		return
	}
	writeError(w, http.StatusBadGateway, "", err.Error())
}
