package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
)

// Kind identifies one of the marketplace contract events.
type Kind string

const (
	KindJobPosted         Kind = "JobPosted"
	KindBidPlaced         Kind = "BidPlaced"
	KindJobCompleted      Kind = "JobCompleted"
	KindJobCancelled      Kind = "JobCancelled"
	KindReputationUpdated Kind = "ReputationUpdated"
)

var (
	// ErrUnknownKind is returned for event kinds outside the closed set.
	ErrUnknownKind = errors.New("unknown event kind")
	// ErrUnknownCategory is returned for unrecognized category selectors.
	ErrUnknownCategory = errors.New("unknown event category")
	// ErrMissingTxHash is returned when a decoded event has no transaction hash.
	ErrMissingTxHash = errors.New("missing transaction hash")
)

// AllKinds returns every event kind in a stable order.
func AllKinds() []Kind {
	return []Kind{
		KindJobPosted,
		KindBidPlaced,
		KindJobCompleted,
		KindJobCancelled,
		KindReputationUpdated,
	}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindJobPosted, KindBidPlaced, KindJobCompleted, KindJobCancelled, KindReputationUpdated:
		return true
	}
	return false
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Source records where an event entered the system.
type Source string

const (
	SourceLive       Source = "live"
	SourceHistorical Source = "historical"
)

// Payload is the kind-specific part of a DomainEvent.
// The set of implementations is closed.
type Payload interface {
	Kind() Kind
	isPayload()
}

// JobPosted is emitted when an employer posts a job.
type JobPosted struct {
	JobID    uint64
	Employer string
	Title    string
	Location string
	Reward   *big.Int
	Deadline uint64
}

// BidPlaced is emitted when a worker bids on a job.
type BidPlaced struct {
	JobID  uint64
	Worker string
	Amount *big.Int
}

// JobCompleted is emitted when a job is marked complete.
type JobCompleted struct {
	JobID    uint64
	Employer string
	Worker   string
}

// JobCancelled is emitted when an employer cancels a job.
type JobCancelled struct {
	JobID    uint64
	Employer string
}

// ReputationUpdated is emitted when a user's reputation score changes.
type ReputationUpdated struct {
	User  string
	Score *big.Int
}

func (JobPosted) Kind() Kind         { return KindJobPosted }
func (BidPlaced) Kind() Kind         { return KindBidPlaced }
func (JobCompleted) Kind() Kind      { return KindJobCompleted }
func (JobCancelled) Kind() Kind      { return KindJobCancelled }
func (ReputationUpdated) Kind() Kind { return KindReputationUpdated }

func (JobPosted) isPayload()         {}
func (BidPlaced) isPayload()         {}
func (JobCompleted) isPayload()      {}
func (JobCancelled) isPayload()      {}
func (ReputationUpdated) isPayload() {}

// DomainEvent is one normalized on-chain occurrence. TransactionHash is its identity.
type DomainEvent struct {
	Kind            Kind
	TransactionHash string
	BlockNumber     uint64
	LogIndex        uint64
	ObservedAt      int64 // epoch milliseconds
	Source          Source
	Payload         Payload
}

// JobID returns the job identifier for job-scoped kinds.
func (e DomainEvent) JobID() (uint64, bool) {
	switch p := e.Payload.(type) {
	case JobPosted:
		return p.JobID, true
	case BidPlaced:
		return p.JobID, true
	case JobCompleted:
		return p.JobID, true
	case JobCancelled:
		return p.JobID, true
	}
	return 0, false
}

// Participants returns the addresses an event involves.
func (e DomainEvent) Participants() []string {
	switch p := e.Payload.(type) {
	case JobPosted:
		return []string{p.Employer}
	case BidPlaced:
		return []string{p.Worker}
	case JobCompleted:
		return []string{p.Employer, p.Worker}
	case JobCancelled:
		return []string{p.Employer}
	case ReputationUpdated:
		return []string{p.User}
	}
	return nil
}

// wireEvent is the flat JSON shape used on SSE frames and the history endpoint.
type wireEvent struct {
	Type            Kind   `json:"type"`
	JobID           string `json:"jobId,omitempty"`
	Employer        string `json:"employer,omitempty"`
	Worker          string `json:"worker,omitempty"`
	User            string `json:"user,omitempty"`
	Title           string `json:"title,omitempty"`
	Location        string `json:"location,omitempty"`
	Reward          string `json:"reward,omitempty"`
	Deadline        string `json:"deadline,omitempty"`
	Amount          string `json:"amount,omitempty"`
	Score           string `json:"score,omitempty"`
	TransactionHash string `json:"transactionHash"`
	BlockNumber     uint64 `json:"blockNumber"`
	LogIndex        uint64 `json:"logIndex"`
	ObservedAt      int64  `json:"observedAt"`
	Source          Source `json:"source,omitempty"`
}

// MarshalJSON encodes the event as a flat object tagged by "type".
func (e DomainEvent) MarshalJSON() ([]byte, error) {
	w := wireEvent{
		Type:            e.Kind,
		TransactionHash: e.TransactionHash,
		BlockNumber:     e.BlockNumber,
		LogIndex:        e.LogIndex,
		ObservedAt:      e.ObservedAt,
		Source:          e.Source,
	}

	switch p := e.Payload.(type) {
	case JobPosted:
		w.JobID = formatUint(p.JobID)
		w.Employer = p.Employer
		w.Title = p.Title
		w.Location = p.Location
		w.Reward = formatBig(p.Reward)
		w.Deadline = formatUint(p.Deadline)
	case BidPlaced:
		w.JobID = formatUint(p.JobID)
		w.Worker = p.Worker
		w.Amount = formatBig(p.Amount)
	case JobCompleted:
		w.JobID = formatUint(p.JobID)
		w.Employer = p.Employer
		w.Worker = p.Worker
	case JobCancelled:
		w.JobID = formatUint(p.JobID)
		w.Employer = p.Employer
	case ReputationUpdated:
		w.User = p.User
		w.Score = formatBig(p.Score)
	case nil:
	default:
		return nil, fmt.Errorf("unsupported payload %T", p)
	}

	return json.Marshal(w)
}

// UnmarshalJSON decodes a flat event object. Missing numeric fields decode as
// zero. The transaction hash is required.
func (e *DomainEvent) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if !w.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, w.Type)
	}
	if w.TransactionHash == "" {
		return fmt.Errorf("%s: %w", w.Type, ErrMissingTxHash)
	}

	jobID, err := parseUint(w.JobID)
	if err != nil {
		return fmt.Errorf("jobId: %w", err)
	}

	var payload Payload
	switch w.Type {
	case KindJobPosted:
		reward, err := parseBig(w.Reward)
		if err != nil {
			return fmt.Errorf("reward: %w", err)
		}
		deadline, err := parseUint(w.Deadline)
		if err != nil {
			return fmt.Errorf("deadline: %w", err)
		}
		payload = JobPosted{
			JobID:    jobID,
			Employer: w.Employer,
			Title:    w.Title,
			Location: w.Location,
			Reward:   reward,
			Deadline: deadline,
		}
	case KindBidPlaced:
		amount, err := parseBig(w.Amount)
		if err != nil {
			return fmt.Errorf("amount: %w", err)
		}
		payload = BidPlaced{JobID: jobID, Worker: w.Worker, Amount: amount}
	case KindJobCompleted:
		payload = JobCompleted{JobID: jobID, Employer: w.Employer, Worker: w.Worker}
	case KindJobCancelled:
		payload = JobCancelled{JobID: jobID, Employer: w.Employer}
	case KindReputationUpdated:
		score, err := parseBig(w.Score)
		if err != nil {
			return fmt.Errorf("score: %w", err)
		}
		payload = ReputationUpdated{User: w.User, Score: score}
	}

	*e = DomainEvent{
		Kind:            w.Type,
		TransactionHash: w.TransactionHash,
		BlockNumber:     w.BlockNumber,
		LogIndex:        w.LogIndex,
		ObservedAt:      w.ObservedAt,
		Source:          w.Source,
		Payload:         payload,
	}
	return nil
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func formatBig(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseUint(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

func parseBig(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}
