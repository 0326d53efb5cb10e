package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finparse/statements/constants"
	"github.com/finparse/statements/internal/batch"
	"github.com/finparse/statements/internal/common"
	"github.com/finparse/statements/internal/llm"
	"github.com/finparse/statements/internal/repository"
	"github.com/finparse/statements/internal/statement"
	"github.com/finparse/statements/internal/storage"
)

// fakeExtractor fails files whose name starts with "fail", with an auth error
// for names starting with "auth".
type fakeExtractor struct{}

func (fakeExtractor) Extract(_ context.Context, req llm.ExtractRequest) (statement.FinancialData, []byte, error) {
	switch {
	case len(req.FileName) >= 4 && req.FileName[:4] == "auth":
		return statement.FinancialData{}, nil, fmt.Errorf("openai status 401: %w", common.ErrUnauthorized)
	case len(req.FileName) >= 4 && req.FileName[:4] == "fail":
		return statement.FinancialData{}, nil, fmt.Errorf("no choices in openai response")
	}
	v := 1200.0
	return statement.FinancialData{
		CompanyName: "Acme Corp",
		Years:       []string{"FY2023"},
		LineItems: []statement.LineItem{
			{Name: "Revenue", StandardizedName: "Revenue", Values: map[string]*float64{"FY2023": &v}},
		},
		Completeness: constants.CompletenessComplete,
	}, []byte(`{}`), nil
}

type testEnv struct {
	e     *echo.Echo
	repo  *repository.ExtractionRepository
	queue *batch.Queue
	done  chan uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := repository.Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo := repository.NewExtractionRepository(db, nil)

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	orch := batch.NewOrchestrator(fakeExtractor{}, nil)

	done := make(chan uuid.UUID, 8)
	queue := batch.NewQueue(orch, func(batchID uuid.UUID, jobs []*batch.FileJob, sum batch.Summary) {
		for _, job := range jobs {
			_ = repo.Finish(context.Background(), job.ID, job.Status, job.Err, job.Result)
		}
		done <- batchID
	}, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		queue.Shutdown(ctx)
	})

	e := echo.New()
	RegisterRoutes(e, NewServer(store, repo, queue, orch, 25, nil))
	return &testEnv{e: e, repo: repo, queue: queue, done: done}
}

func multipartRequest(t *testing.T, target string, files map[string][]byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, data := range files {
		fw, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestHandleExtractSync_OK(t *testing.T) {
	env := newTestEnv(t)

	req := multipartRequest(t, "/api/extract", map[string][]byte{
		"acme.pdf": []byte("%PDF-1.4"),
		"fail.pdf": []byte("%PDF-1.4"),
	})
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var sum batch.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Len(t, sum.Results, 1)
	assert.Len(t, sum.Failures, 1)
	assert.Equal(t, "fail.pdf", sum.Failures[0].FileName)
	assert.False(t, sum.AuthFailure)
}

func TestHandleExtractSync_AuthFailure(t *testing.T) {
	env := newTestEnv(t)

	req := multipartRequest(t, "/api/extract", map[string][]byte{
		"auth.pdf": []byte("%PDF-1.4"),
	})
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, "UNAUTHORIZED", apiErr.Code)
}

func TestHandleExtractSync_RejectsNonPDF(t *testing.T) {
	env := newTestEnv(t)

	req := multipartRequest(t, "/api/extract", map[string][]byte{
		"notes.txt": []byte("hello"),
	})
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleExtractSync_RejectsEmptyBatch(t *testing.T) {
	env := newTestEnv(t)

	req := multipartRequest(t, "/api/extract", nil)
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAsyncBatchFlow(t *testing.T) {
	env := newTestEnv(t)

	req := multipartRequest(t, "/api/extractions", map[string][]byte{
		"acme.pdf": []byte("%PDF-1.4"),
	})
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp createBatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Jobs, 1)

	select {
	case <-env.done:
	case <-time.After(5 * time.Second):
		t.Fatal("batch did not finish")
	}

	// job is now done with its result recorded
	rec = httptest.NewRecorder()
	env.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/extractions/"+resp.Jobs[0].ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var job repository.JobRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, constants.StatusDone, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, "Acme Corp", job.Result.CompanyName)

	// wide CSV download
	rec = httptest.NewRecorder()
	env.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/extractions/"+resp.Jobs[0].ID.String()+"/export?format=wide", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "attachment")
	assert.Contains(t, rec.Body.String(), "Acme Corp,Revenue,Revenue,1200")

	// batch view
	rec = httptest.NewRecorder()
	env.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/batches/"+resp.BatchID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUploadLifecycle(t *testing.T) {
	env := newTestEnv(t)

	req := multipartRequest(t, "/api/extractions", map[string][]byte{
		"acme.pdf": []byte("%PDF-1.4"),
	})
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	<-env.done

	// the stored upload is listed
	rec = httptest.NewRecorder()
	env.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/uploads", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var uploads []*storage.FileInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &uploads))
	require.Len(t, uploads, 1)
	assert.Equal(t, "acme.pdf", uploads[0].Name)

	// re-extract from the store without re-uploading
	rec = httptest.NewRecorder()
	env.e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/uploads/"+uploads[0].ID+"/extract", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp createBatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Jobs, 1)
	<-env.done

	rec = httptest.NewRecorder()
	env.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/extractions/"+resp.Jobs[0].ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var job repository.JobRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, constants.StatusDone, job.Status)

	// delete frees the upload; a second delete is a 404
	rec = httptest.NewRecorder()
	env.e.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/uploads/"+uploads[0].ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = httptest.NewRecorder()
	env.e.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/uploads/"+uploads[0].ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCreateBatch_RefusedDuringShutdown(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	env.queue.Shutdown(ctx)

	req := multipartRequest(t, "/api/extractions", map[string][]byte{
		"acme.pdf": []byte("%PDF-1.4"),
	})
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, "SERVICE_UNAVAILABLE", apiErr.Code)

	// no job row is left stuck at "uploading"
	recs, err := env.repo.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	for _, jr := range recs {
		assert.Equal(t, constants.StatusError, jr.Status)
	}
}

func TestHandleGetJob_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/extractions/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleExportJob_BadFormat(t *testing.T) {
	env := newTestEnv(t)

	req := multipartRequest(t, "/api/extractions", map[string][]byte{"acme.pdf": []byte("%PDF-1.4")})
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp createBatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	<-env.done

	rec = httptest.NewRecorder()
	env.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/extractions/"+resp.Jobs[0].ID.String()+"/export?format=yaml", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
