package batch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finparse/statements/constants"
	"github.com/finparse/statements/internal/common"
	"github.com/finparse/statements/internal/llm"
	"github.com/finparse/statements/internal/statement"
)

// FileJob is one file moving through a batch. Status and Err are mutated in
// place as the file advances; the orchestrator guards them with its own lock,
// so callers must read them through a StatusFunc or after Run returns.
type FileJob struct {
	ID       uuid.UUID
	FileName string
	Data     []byte

	Status  constants.FileStatus
	Err     string
	Result  *statement.FinancialData
	RawJSON []byte

	authFailure bool
}

// NewFileJob builds a job in the uploading state.
func NewFileJob(fileName string, data []byte) *FileJob {
	return &FileJob{
		ID:       uuid.New(),
		FileName: fileName,
		Data:     data,
		Status:   constants.StatusUploading,
	}
}

// FileError is one failed file in a batch summary.
type FileError struct {
	FileName string `json:"file_name"`
	Message  string `json:"message"`
}

// Summary aggregates a finished batch. Results keep the input file order.
type Summary struct {
	Results  []statement.ExtractionResult `json:"results"`
	Failures []FileError                  `json:"failures,omitempty"`
	// AuthFailure is set when any failure was an authentication error from
	// the provider; one bad key fails every file the same way, so the caller
	// should fix the key rather than retry files.
	AuthFailure bool `json:"auth_failure,omitempty"`
}

// StatusFunc observes per-file status transitions.
type StatusFunc func(job *FileJob)

// Orchestrator fans out one extraction per file over a bounded worker set and
// waits for all of them. No retries; per-file failures land in the summary.
type Orchestrator struct {
	extractor llm.StatementExtractor
	logger    *slog.Logger
	workers   int
	timeout   time.Duration
	onStatus  StatusFunc

	mu sync.Mutex
}

type Option func(*Orchestrator)

func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

func WithJobTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithStatusFunc registers a callback fired on every status transition.
func WithStatusFunc(fn StatusFunc) Option {
	return func(o *Orchestrator) { o.onStatus = fn }
}

func NewOrchestrator(extractor llm.StatementExtractor, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		extractor: extractor,
		logger:    logger,
		workers:   4,
		timeout:   3 * time.Minute,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run processes every job and returns the aggregated summary. It always waits
// for all files; ctx cancellation surfaces as per-file errors.
func (o *Orchestrator) Run(ctx context.Context, jobs []*FileJob) Summary {
	start := time.Now()
	sem := make(chan struct{}, o.workers)
	var wg sync.WaitGroup

	for _, job := range jobs {
		wg.Add(1)
		go func(job *FileJob) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			o.process(ctx, job)
		}(job)
	}
	wg.Wait()

	var sum Summary
	for _, job := range jobs {
		switch job.Status {
		case constants.StatusDone:
			sum.Results = append(sum.Results, statement.ExtractionResult{
				FileName: job.FileName,
				Data:     *job.Result,
			})
		default:
			sum.Failures = append(sum.Failures, FileError{FileName: job.FileName, Message: job.Err})
			if job.authFailure {
				sum.AuthFailure = true
			}
		}
	}

	o.logger.Info("batch.run.done",
		"files", len(jobs),
		"succeeded", len(sum.Results),
		"failed", len(sum.Failures),
		"auth_failure", sum.AuthFailure,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return sum
}

func (o *Orchestrator) process(ctx context.Context, job *FileJob) {
	o.setStatus(job, constants.StatusProcessing, "")

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	data, raw, err := o.extractor.Extract(ctx, llm.ExtractRequest{
		FileName: job.FileName,
		PDF:      job.Data,
	})
	if err != nil {
		o.logger.Error("batch.file.failed", "job_id", job.ID, "file", job.FileName, "error", err)
		o.fail(job, err)
		return
	}

	o.mu.Lock()
	job.Result = &data
	job.RawJSON = raw
	o.mu.Unlock()
	o.setStatus(job, constants.StatusDone, "")
	o.logger.Info("batch.file.done", "job_id", job.ID, "file", job.FileName, "company", data.CompanyName)
}

func (o *Orchestrator) fail(job *FileJob, err error) {
	if errors.Is(err, common.ErrUnauthorized) {
		o.mu.Lock()
		job.authFailure = true
		o.mu.Unlock()
	}
	o.setStatus(job, constants.StatusError, err.Error())
}

func (o *Orchestrator) setStatus(job *FileJob, st constants.FileStatus, msg string) {
	o.mu.Lock()
	job.Status = st
	job.Err = msg
	o.mu.Unlock()
	if o.onStatus != nil {
		o.onStatus(job)
	}
}
