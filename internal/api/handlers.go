package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/finparse/statements/constants"
	"github.com/finparse/statements/internal/batch"
	"github.com/finparse/statements/internal/common"
	"github.com/finparse/statements/internal/export"
	"github.com/finparse/statements/internal/repository"
	"github.com/finparse/statements/internal/statement"
	"github.com/finparse/statements/internal/storage"
)

// Server holds the handler dependencies.
type Server struct {
	store       storage.Store
	repo        *repository.ExtractionRepository
	queue       *batch.Queue
	orch        *batch.Orchestrator
	maxUploadMB int
	logger      *slog.Logger
}

func NewServer(store storage.Store, repo *repository.ExtractionRepository, queue *batch.Queue, orch *batch.Orchestrator, maxUploadMB int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUploadMB <= 0 {
		maxUploadMB = constants.MaxUploadMBDefault
	}
	return &Server{
		store:       store,
		repo:        repo,
		queue:       queue,
		orch:        orch,
		maxUploadMB: maxUploadMB,
		logger:      logger,
	}
}

type jobSummary struct {
	ID       uuid.UUID            `json:"id"`
	FileName string               `json:"file_name"`
	Status   constants.FileStatus `json:"status"`
	Error    string               `json:"error,omitempty"`
}

type createBatchResponse struct {
	BatchID uuid.UUID    `json:"batch_id"`
	Jobs    []jobSummary `json:"jobs"`
}

// HandleCreateBatch accepts multipart PDFs, stores them, and enqueues the
// batch for background extraction.
func (s *Server) HandleCreateBatch(c echo.Context) error {
	jobs, apiErr := s.readFiles(c)
	if apiErr != nil {
		return apiErr
	}
	return s.acceptBatch(c, jobs)
}

// acceptBatch records the jobs and hands them to the queue, answering 202.
func (s *Server) acceptBatch(c echo.Context, jobs []*batch.FileJob) error {
	batchID := uuid.New()
	ctx := c.Request().Context()
	resp := createBatchResponse{BatchID: batchID}
	for _, job := range jobs {
		if err := s.repo.Create(ctx, job.ID, batchID, job.FileName, job.Status); err != nil {
			return NewInternalError("failed to record job", err)
		}
		resp.Jobs = append(resp.Jobs, jobSummary{ID: job.ID, FileName: job.FileName, Status: job.Status})
	}

	if err := s.queue.Enqueue(ctx, batch.Batch{ID: batchID, Jobs: jobs, SubmittedAt: time.Now()}); err != nil {
		// The rows were already created; close them out so nothing stays
		// stuck at "uploading" across a restart.
		for _, job := range jobs {
			if fErr := s.repo.Finish(ctx, job.ID, constants.StatusError, "batch was not accepted: "+err.Error(), nil); fErr != nil {
				s.logger.Error("failed to close out refused job", "job_id", job.ID, "error", fErr)
			}
		}
		if errors.Is(err, batch.ErrQueueClosed) {
			return NewServiceUnavailableError("server is shutting down")
		}
		return NewInternalError("failed to enqueue batch", err)
	}

	s.logger.Info("api.batch.accepted", "batch_id", batchID, "files", len(jobs))
	return c.JSON(http.StatusAccepted, resp)
}

// HandleListUploads returns stored uploads, newest first.
func (s *Server) HandleListUploads(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return NewValidationError("limit")
		}
		limit = n
	}
	files, err := s.store.List(limit)
	if err != nil {
		return NewInternalError("failed to list uploads", err)
	}
	return c.JSON(http.StatusOK, files)
}

// HandleReextract runs a fresh extraction on an already stored upload, so a
// failed or outdated job can be retried without re-uploading the PDF.
func (s *Server) HandleReextract(c echo.Context) error {
	id := c.Param("id")
	info, err := s.store.Get(id)
	if errors.Is(err, common.ErrNotFound) {
		return NewNotFoundError("upload", id)
	}
	if err != nil {
		return NewInternalError("failed to load upload", err)
	}
	data, err := s.store.Read(id)
	if err != nil {
		return NewInternalError("failed to read upload", err)
	}
	return s.acceptBatch(c, []*batch.FileJob{batch.NewFileJob(info.Name, data)})
}

// HandleDeleteUpload removes a stored upload. Job history stays.
func (s *Server) HandleDeleteUpload(c echo.Context) error {
	id := c.Param("id")
	if err := s.store.Delete(id); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return NewNotFoundError("upload", id)
		}
		return NewInternalError("failed to delete upload", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleExtractSync runs a batch inline and returns the summary. Clients that
// do not poll use this instead of the async flow.
func (s *Server) HandleExtractSync(c echo.Context) error {
	jobs, apiErr := s.readFiles(c)
	if apiErr != nil {
		return apiErr
	}

	sum := s.orch.Run(c.Request().Context(), jobs)
	if sum.AuthFailure && len(sum.Results) == 0 {
		return NewUnauthorizedError("extraction provider rejected the API key")
	}
	return c.JSON(http.StatusOK, sum)
}

// HandleListJobs returns the most recent extraction jobs.
func (s *Server) HandleListJobs(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return NewValidationError("limit")
		}
		limit = n
	}
	recs, err := s.repo.ListRecent(c.Request().Context(), limit)
	if err != nil {
		return NewInternalError("failed to list jobs", err)
	}
	return c.JSON(http.StatusOK, recs)
}

// HandleGetJob returns one job, including its result when done.
func (s *Server) HandleGetJob(c echo.Context) error {
	id, apiErr := parseID(c)
	if apiErr != nil {
		return apiErr
	}
	rec, err := s.repo.Get(c.Request().Context(), id)
	if errors.Is(err, common.ErrNotFound) {
		return NewNotFoundError("extraction", id.String())
	}
	if err != nil {
		return NewInternalError("failed to load job", err)
	}
	return c.JSON(http.StatusOK, rec)
}

// HandleGetBatch returns every job in a batch.
func (s *Server) HandleGetBatch(c echo.Context) error {
	id, apiErr := parseID(c)
	if apiErr != nil {
		return apiErr
	}
	recs, err := s.repo.ListByBatch(c.Request().Context(), id)
	if err != nil {
		return NewInternalError("failed to load batch", err)
	}
	if len(recs) == 0 {
		return NewNotFoundError("batch", id.String())
	}
	return c.JSON(http.StatusOK, recs)
}

// HandleExportJob downloads one finished job as wide CSV, long CSV, or XLSX.
func (s *Server) HandleExportJob(c echo.Context) error {
	id, apiErr := parseID(c)
	if apiErr != nil {
		return apiErr
	}
	rec, err := s.repo.Get(c.Request().Context(), id)
	if errors.Is(err, common.ErrNotFound) {
		return NewNotFoundError("extraction", id.String())
	}
	if err != nil {
		return NewInternalError("failed to load job", err)
	}
	if rec.Status != constants.StatusDone || rec.Result == nil {
		return NewConflictError("extraction is not done")
	}
	results := []statement.ExtractionResult{{FileName: rec.FileName, Data: *rec.Result}}
	return s.writeExport(c, rec.FileName, results)
}

// HandleExportBatch downloads every finished job in a batch as one file.
func (s *Server) HandleExportBatch(c echo.Context) error {
	id, apiErr := parseID(c)
	if apiErr != nil {
		return apiErr
	}
	recs, err := s.repo.ListByBatch(c.Request().Context(), id)
	if err != nil {
		return NewInternalError("failed to load batch", err)
	}
	if len(recs) == 0 {
		return NewNotFoundError("batch", id.String())
	}
	var results []statement.ExtractionResult
	for _, rec := range recs {
		if rec.Status == constants.StatusDone && rec.Result != nil {
			results = append(results, statement.ExtractionResult{FileName: rec.FileName, Data: *rec.Result})
		}
	}
	if len(results) == 0 {
		return NewConflictError("no finished extractions in batch")
	}
	return s.writeExport(c, "statements", results)
}

// HandleHealth is the liveness probe.
func (s *Server) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeExport(c echo.Context, baseName string, results []statement.ExtractionResult) error {
	format := c.QueryParam("format")
	if format == "" {
		format = "wide"
	}
	switch format {
	case "wide":
		b, err := export.WideCSV(results)
		if err != nil {
			return NewInternalError("csv export failed", err)
		}
		return attachment(c, baseName+"-wide.csv", "text/csv", b)
	case "long":
		b, err := export.LongCSV(results)
		if err != nil {
			return NewInternalError("csv export failed", err)
		}
		return attachment(c, baseName+"-long.csv", "text/csv", b)
	case "xlsx":
		b, err := export.XLSX(results, s.logger)
		if err != nil {
			return NewInternalError("xlsx export failed", err)
		}
		return attachment(c, baseName+".xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", b)
	default:
		return NewValidationError("format")
	}
}

func attachment(c echo.Context, name, contentType string, b []byte) error {
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename=%q`, name))
	return c.Blob(http.StatusOK, contentType, b)
}

// readFiles validates and stores every uploaded PDF, returning one job per
// accepted file. Rejections are per file: one bad file fails the request with
// a pointer at the offender rather than silently skipping it.
func (s *Server) readFiles(c echo.Context) ([]*batch.FileJob, *APIError) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, NewBadRequestError("expected multipart form", err)
	}
	files := form.File["files"]
	if len(files) == 0 {
		return nil, NewValidationError("files")
	}

	maxBytes := int64(s.maxUploadMB) * 1024 * 1024
	var jobs []*batch.FileJob
	for _, fh := range files {
		if !constants.IsAllowedExt(fh.Filename) {
			return nil, NewBadRequestError(fmt.Sprintf("unsupported file type: %s", fh.Filename), nil)
		}
		if fh.Size > maxBytes {
			return nil, NewBadRequestError(fmt.Sprintf("file too large: %s (max %d MB)", fh.Filename, s.maxUploadMB), nil)
		}
		data, err := readUpload(fh)
		if err != nil {
			return nil, NewInternalError("failed to read upload", err)
		}
		if _, err := s.store.Save(fh.Filename, bytes.NewReader(data)); err != nil {
			return nil, NewInternalError("failed to store upload", err)
		}
		jobs = append(jobs, batch.NewFileJob(fh.Filename, data))
	}
	return jobs, nil
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return io.ReadAll(src)
}

func parseID(c echo.Context) (uuid.UUID, *APIError) {
	raw := c.Param("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, NewValidationError("id")
	}
	return id, nil
}
