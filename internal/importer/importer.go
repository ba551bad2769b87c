// Package importer drives the incremental import pipeline: enumerate
// source files, skip what the ledger already covers, extract, validate,
// persist, and only then mark the file imported. A receipt is marked done
// if and only if it is durably stored.
package importer

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/parvanovkp/receiptsage/internal/receipt"
	"github.com/parvanovkp/receiptsage/internal/scanning"
	"github.com/parvanovkp/receiptsage/internal/schema"
)

// contentTypes maps the supported source extensions. Anything else in the
// directory is ignored, not errored.
var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".heic": "image/heic",
	".heif": "image/heif",
	".pdf":  "application/pdf",
}

// Ledger is the importer's view of the import ledger.
type Ledger interface {
	Seen(fingerprint string) (bool, error)
	MarkImported(fingerprint, path string) error
	MarkFailed(fingerprint, path, errMsg string) error
}

// Store is the importer's view of the persistence layer.
type Store interface {
	Save(ctx context.Context, r *receipt.Receipt) (int64, error)
	KnownStores(ctx context.Context) ([]string, error)
}

// Importer orchestrates a batch run. Workers <= 1 means sequential
// processing; higher values dispatch extraction calls concurrently.
type Importer struct {
	Scanner scanning.Scanner
	Ledger  Ledger
	Store   Store
	Workers int
	Logger  *slog.Logger
}

func New(scanner scanning.Scanner, ledger Ledger, store Store) *Importer {
	return &Importer{
		Scanner: scanner,
		Ledger:  ledger,
		Store:   store,
		Workers: 1,
		Logger:  slog.Default(),
	}
}

// run-wide mutable state shared by workers.
type runState struct {
	mu       sync.Mutex
	summary  Summary
	claimed  map[string]bool
	known    []string
	fatalErr error
	cancel   context.CancelFunc
}

// claim reserves a fingerprint for this run so two identical files cannot
// be imported twice within one batch.
func (st *runState) claim(fp string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.claimed[fp] {
		return false
	}
	st.claimed[fp] = true
	return true
}

func (st *runState) fail(path string, stage Stage, err error) {
	st.mu.Lock()
	st.summary.Failed = append(st.summary.Failed, Failure{Path: path, Stage: stage, Err: err})
	st.mu.Unlock()
}

func (st *runState) fatal(err error) {
	st.mu.Lock()
	if st.fatalErr == nil {
		st.fatalErr = err
	}
	st.mu.Unlock()
	st.cancel()
}

// normalizeStore resolves the canonical store name against everything seen
// so far, in the database and in this run.
func (st *runState) normalizeStore(raw string) string {
	st.mu.Lock()
	defer st.mu.Unlock()
	name := receipt.NormalizeStoreName(raw, st.known)
	for _, k := range st.known {
		if k == name {
			return name
		}
	}
	st.known = append(st.known, name)
	return name
}

// Run imports every new receipt under dir and returns a summary. Per-file
// errors are recorded and processing continues; quota exhaustion aborts the
// remaining files; a ledger failure aborts the run with an error.
func (imp *Importer) Run(ctx context.Context, dir string) (Summary, error) {
	files, err := imp.candidates(dir)
	if err != nil {
		return Summary{}, err
	}

	known, err := imp.Store.KnownStores(ctx)
	if err != nil {
		return Summary{}, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	st := &runState{
		claimed: make(map[string]bool),
		known:   known,
		cancel:  cancel,
	}

	workers := imp.Workers
	if workers < 1 {
		workers = 1
	}

	paths := make(chan string)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range paths {
				imp.processFile(ctx, runCtx, st, path)
			}
		}()
	}

dispatch:
	for _, path := range files {
		select {
		case <-runCtx.Done():
			break dispatch
		case paths <- path:
		}
	}
	close(paths)
	wg.Wait()

	st.summary.NotAttempted = len(files) - st.summary.Imported - st.summary.Skipped - len(st.summary.Failed)
	return st.summary, st.fatalErr
}

// candidates walks dir and returns the supported files in stable order.
// The source directory is read-only input; nothing is moved or deleted.
func (imp *Importer) candidates(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// processFile runs one file through the pipeline. runCtx gates whether the
// file starts at all; once started, the file runs under ctx so a quota
// abort elsewhere lets it finish naturally.
func (imp *Importer) processFile(ctx, runCtx context.Context, st *runState, path string) {
	select {
	case <-runCtx.Done():
		// Aborted before this file started; leave it for the next run.
		return
	default:
	}

	log := imp.Logger.With("file", path)

	data, err := os.ReadFile(path)
	if err != nil {
		log.Error("reading source file failed", "error", err)
		st.fail(path, StageRead, err)
		return
	}

	fp := Fingerprint(data)
	if !st.claim(fp) {
		log.Info("duplicate content within run, skipping")
		st.mu.Lock()
		st.summary.Skipped++
		st.mu.Unlock()
		return
	}

	seen, err := imp.Ledger.Seen(fp)
	if err != nil {
		st.fatal(err)
		return
	}
	if seen {
		log.Debug("already imported, skipping", "fingerprint", fp)
		st.mu.Lock()
		st.summary.Skipped++
		st.mu.Unlock()
		return
	}

	contentType := contentTypes[strings.ToLower(filepath.Ext(path))]
	raw, err := imp.Scanner.Extract(ctx, data, contentType)
	if err != nil {
		log.Error("extraction failed", "error", err)
		st.fail(path, StageExtract, err)
		if lerr := imp.Ledger.MarkFailed(fp, path, err.Error()); lerr != nil {
			st.fatal(lerr)
			return
		}
		if scanning.IsQuotaExceeded(err) {
			// Further calls are certain to fail identically; stop taking
			// new work but keep everything already completed.
			log.Warn("extraction quota exhausted, aborting remaining files")
			st.cancel()
		}
		return
	}

	rec, warnings, err := schema.Validate(raw)
	if err != nil {
		log.Error("validation rejected document", "error", err)
		st.fail(path, StageValidate, err)
		if lerr := imp.Ledger.MarkFailed(fp, path, err.Error()); lerr != nil {
			st.fatal(lerr)
		}
		return
	}
	for _, w := range warnings {
		log.Warn("validation warning", "warning", w.String())
	}

	rec.SourcePath = path
	rec.Fingerprint = fp
	rec.StoreNormalized = st.normalizeStore(rec.Store)

	if _, err := imp.Store.Save(ctx, rec); err != nil {
		log.Error("persisting receipt failed", "error", err)
		st.fail(path, StageStore, err)
		if lerr := imp.Ledger.MarkFailed(fp, path, err.Error()); lerr != nil {
			st.fatal(lerr)
		}
		return
	}

	// The commit above is durable; only now may the ledger say "done".
	if err := imp.Ledger.MarkImported(fp, path); err != nil {
		st.fatal(err)
		return
	}

	log.Info("imported receipt", "store", rec.Store, "total", rec.Total, "items", len(rec.Items))
	st.mu.Lock()
	st.summary.Imported++
	st.mu.Unlock()
}
