// Package jobstore implements the Analysis repository (C6): durable job
// records with a Postgres compare-and-set claim as the sole multi-writer
// safety mechanism. Grounded on the teacher's
// pkg/storage/postgres/base_store.go query-helper shape and
// original_source threat-service/app/analysis/models/analysis.py for the
// status enum and field set.
package jobstore

import (
	"time"

	"github.com/google/uuid"
)

// Status is one of the four Analysis lifecycle states, kept as the
// original Portuguese literals since the worker's notification message and
// the end-to-end scenarios in the spec reference them verbatim.
type Status string

const (
	StatusOpen       Status = "EM_ABERTO"
	StatusProcessing Status = "PROCESSANDO"
	StatusDone       Status = "ANALISADO"
	StatusFailed     Status = "FALHOU"
)

// Analysis is one threat-modeling job record.
type Analysis struct {
	ID              uuid.UUID
	Code            string
	ImagePath       string
	ContentType     string
	Status          Status
	CreatedAt       time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
	Result          []byte // raw JSON, decoded into pipeline.ThreatReport by callers
	ProcessingLogs  string
	ErrorMessage    string
}

// IsOpen, IsProcessing, IsDone, IsFailed mirror the original model's status
// properties.
func (a *Analysis) IsOpen() bool       { return a.Status == StatusOpen }
func (a *Analysis) IsProcessing() bool { return a.Status == StatusProcessing }
func (a *Analysis) IsDone() bool       { return a.Status == StatusDone }
func (a *Analysis) IsFailed() bool     { return a.Status == StatusFailed }

// Filter narrows a listAll query; zero values mean "unconstrained".
type Filter struct {
	CodeSubstring string
	Status        Status
	CreatedAtFrom *time.Time
	CreatedAtTo   *time.Time
}

// Page is an opaque offset/limit pagination window.
type Page struct {
	Offset int
	Limit  int
}
