package domain

import (
	"errors"
	"math/big"
)

// ErrJobNotFound is returned when the contract has no job with the given id.
var ErrJobNotFound = errors.New("job not found")

type JobStatus string

const (
	JobStatusOpen      JobStatus = "open"
	JobStatusAssigned  JobStatus = "assigned"
	JobStatusCompleted JobStatus = "completed"
	JobStatusCancelled JobStatus = "cancelled"
)

// JobStatusFromCode maps the contract's uint8 status enum.
func JobStatusFromCode(code uint8) JobStatus {
	switch code {
	case 1:
		return JobStatusAssigned
	case 2:
		return JobStatusCompleted
	case 3:
		return JobStatusCancelled
	default:
		return JobStatusOpen
	}
}

// Job is the on-chain job record as read from the marketplace contract.
type Job struct {
	ID          uint64    `json:"id"`
	Employer    string    `json:"employer"`
	Worker      string    `json:"worker"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Reward      *big.Int  `json:"reward"`
	Deadline    uint64    `json:"deadline"`
	Status      JobStatus `json:"status"`
}

// Bid is a worker's offer on a job.
type Bid struct {
	JobID    uint64   `json:"job_id"`
	Worker   string   `json:"worker"`
	Amount   *big.Int `json:"amount"`
	PlacedAt uint64   `json:"placed_at"`
}
