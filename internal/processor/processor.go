// Package processor implements the cleaning/dedup/segmentation/enrichment
// chain every ingested Record flows through before it reaches the Store,
// grounded on the normalization pipeline shape of
// ryansgi-swearjar/backend/internal/core/normalize and the per-namespace
// detector.Scan document-transform idiom.
package processor

import (
	"fmt"

	"daylog/internal/record"
)

// Processor transforms a single Record
type Processor func(record.Record) (record.Record, error)

// BatchProcessor transforms an entire batch of Records at once. A non-nil
// error means the batch as a whole could not be processed safely (e.g. a
// panic was recovered, or a shared precondition failed); it does NOT mean
// every record in the batch is bad
type BatchProcessor func([]record.Record) ([]record.Record, error)

// ItemError pairs a Record id with the error that removed it from a batch
type ItemError struct {
	RecordID string
	Err      error
}

// Stage is one link in a Chain. Batch is tried first when present; Item is
// the required per-record fallback run when Batch fails outright, and the
// sole processor when Batch is nil
type Stage struct {
	Name  string
	Batch BatchProcessor
	Item  Processor
}

// Chain runs an ordered list of Stages over a batch of Records. A
// whole-batch failure in one stage never poisons the rest of the batch:
// Run retries that stage item-by-item via Stage.Item so one bad record
// only drops itself
type Chain struct {
	Name   string
	Stages []Stage
}

// NewChain builds a Chain from stages, in the order they run
func NewChain(name string, stages ...Stage) *Chain {
	return &Chain{Name: name, Stages: stages}
}

// Run executes every stage over items in order, accumulating ItemErrors
// for records dropped along the way
func (c *Chain) Run(items []record.Record) ([]record.Record, []ItemError) {
	var errs []ItemError
	cur := items
	for _, stage := range c.Stages {
		var stageErrs []ItemError
		cur, stageErrs = runStage(stage, cur)
		errs = append(errs, stageErrs...)
		if len(cur) == 0 {
			break
		}
	}
	return cur, errs
}

func runStage(stage Stage, items []record.Record) (out []record.Record, errs []ItemError) {
	if stage.Batch == nil {
		return runItemwise(stage.Item, items)
	}

	out, err := runBatchSafely(stage.Batch, items)
	if err == nil {
		return out, nil
	}
	// Whole-batch failure: fall back to per-item so a single bad record
	// doesn't take its batch-mates down with it
	return runItemwise(stage.Item, items)
}

// runBatchSafely invokes fn, converting any panic into an error so a
// single stage's bug degrades to the itemwise fallback instead of
// crashing the caller
func runBatchSafely(fn BatchProcessor, items []record.Record) (out []record.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor: batch stage panicked: %v", r)
		}
	}()
	return fn(items)
}

func runItemwise(p Processor, items []record.Record) ([]record.Record, []ItemError) {
	if p == nil {
		return items, nil
	}
	out := make([]record.Record, 0, len(items))
	var errs []ItemError
	for _, item := range items {
		next, err := p(item)
		if err != nil {
			errs = append(errs, ItemError{RecordID: item.ID, Err: err})
			continue
		}
		out = append(out, next)
	}
	return out, errs
}
