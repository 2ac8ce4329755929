package download

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyInProgress = errors.New("gallery already in progress")
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotInCatalog      = errors.New("gallery not in catalog")
)

type Kind string

const (
	KindDownload Kind = "download"
	KindImport   Kind = "import"
	KindReplace  Kind = "replace"
)

// Stage names the pipeline step a job failed in.
type Stage string

const (
	StageQueue         Stage = "queue"
	StageFetchDetail   Stage = "fetch_detail"
	StageFetchMetadata Stage = "fetch_metadata"
	StageArchive       Stage = "archive"
	StageCopy          Stage = "copy"
	StageSidecar       Stage = "sidecar"
	StageCover         Stage = "cover"
	StageMap           Stage = "map"
	StageFind          Stage = "find"
	StageCatalog       Stage = "catalog"
	StagePanic         Stage = "panic"
)

// JobError is the terminal error of a job.
type JobError struct {
	Key   string
	Kind  Kind
	Stage Stage
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Kind, e.Key, e.Stage, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}
