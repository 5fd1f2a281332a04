package domain

import (
	"errors"
	"fmt"
)

// Error kinds for each pipeline stage. Adapters wrap one of these so callers
// can classify failures with errors.Is.
var (
	ErrTransport = errors.New("transport error")
	ErrParse     = errors.New("parse error")
	ErrWrite     = errors.New("write error")
	ErrLoad      = errors.New("load error")
)

// Stage identifies a step of a feed run.
type Stage string

const (
	StageFetch  Stage = "fetch"
	StageEnrich Stage = "enrich"
	StageWrite  Stage = "write"
	StageLoad   Stage = "load"
)

// StageError records which feed and stage a run failed in.
type StageError struct {
	Feed  string
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("feed %s: %s: %v", e.Feed, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
