package pipeline

import (
	"context"
	"errors"

	"github.com/baxromumarov/catalog-scraper/internal/product"
)

// ErrDropped matches every *Drop with errors.Is.
var ErrDropped = errors.New("record dropped")

const (
	ReasonMissingPrice = "missing price"
	ReasonDuplicate    = "duplicate"
	ReasonMissingField = "missing required fields"
)

// Stage is one step of the record pipeline. Process may mutate rec and must
// return either Continue or DropRecord; it never fails the run.
type Stage interface {
	Name() string
	Process(ctx context.Context, rec *product.Record) Result
}

// Result is the tagged outcome of a stage: a record to pass on, or a drop.
type Result struct {
	Record *product.Record
	Drop   *Drop
}

func Continue(rec *product.Record) Result {
	return Result{Record: rec}
}

func DropRecord(stage, reason string, fields ...string) Result {
	return Result{Drop: &Drop{Stage: stage, Reason: reason, Fields: fields}}
}

// Dropped reports whether the record must not be emitted.
func (r Result) Dropped() bool {
	return r.Drop != nil
}

// Drop describes why a record left the pipeline.
type Drop struct {
	Stage  string
	Reason string
	// Fields lists the missing required fields for validation drops.
	Fields []string
}

func (d *Drop) Error() string {
	return d.Reason
}

func (d *Drop) Is(target error) bool {
	return target == ErrDropped
}
