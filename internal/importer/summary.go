package importer

import (
	"fmt"
	"strings"
)

// Stage names the pipeline step a file failed in.
type Stage string

const (
	StageRead     Stage = "read"
	StageExtract  Stage = "extract"
	StageValidate Stage = "validate"
	StageStore    Stage = "store"
)

// Failure records one file that could not be imported this run. The file
// stays eligible for retry on the next run.
type Failure struct {
	Path  string
	Stage Stage
	Err   error
}

// Summary reports the outcome of a batch run. NotAttempted counts files
// left untouched after a quota abort.
type Summary struct {
	Imported     int
	Skipped      int
	NotAttempted int
	Failed       []Failure
}

// Candidates is the number of files the run found to consider.
func (s Summary) Candidates() int {
	return s.Imported + s.Skipped + s.NotAttempted + len(s.Failed)
}

func (s Summary) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "imported %d, skipped %d, failed %d", s.Imported, s.Skipped, len(s.Failed))
	if s.NotAttempted > 0 {
		fmt.Fprintf(&sb, ", not attempted %d", s.NotAttempted)
	}
	for _, f := range s.Failed {
		fmt.Fprintf(&sb, "\n  %s [%s]: %v", f.Path, f.Stage, f.Err)
	}
	return sb.String()
}
