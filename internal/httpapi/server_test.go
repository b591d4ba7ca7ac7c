package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadboard/leadboard-go/internal/board"
	"github.com/leadboard/leadboard-go/internal/bulk"
	"github.com/leadboard/leadboard-go/internal/cache"
	"github.com/leadboard/leadboard-go/internal/conf"
	"github.com/leadboard/leadboard-go/internal/datastore"
	"github.com/leadboard/leadboard-go/internal/jobqueue"
	"github.com/leadboard/leadboard-go/internal/mailer"
)

type fixture struct {
	server *Server
	store  datastore.Interface
}

// acceptAllSender delivers everything, standing in for the SMTP sender.
type acceptAllSender struct{}

func (acceptAllSender) Name() string { return "default" }
func (acceptAllSender) Send(ctx context.Context, to, subject, htmlBody, from string) error {
	return nil
}

func newServer(t *testing.T) *fixture {
	t.Helper()
	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = t.TempDir() + "/test.db"
	settings.Web.Port = "0"

	store := datastore.New(settings)
	require.NoError(t, store.Open())
	t.Cleanup(func() { assert.NoError(t, store.Close()) })

	boardService := board.New(&board.Config{
		Store:    store,
		Cache:    cache.NewMemoryStore(time.Minute, time.Minute),
		CacheTTL: time.Minute,
	})

	queue := jobqueue.New(jobqueue.Config{
		MaxJobs:          100,
		ProcessInterval:  10 * time.Millisecond,
		ExecutionTimeout: 30 * time.Second,
	})
	queue.Start(context.Background())
	t.Cleanup(queue.Stop)

	emailAction := bulk.NewEmailAction(store, map[string]mailer.Provider{}, acceptAllSender{}, "crm@example.com", nil, nil)
	importAction := bulk.NewImportAction(store, nil, nil)

	server := New(settings, boardService, queue, emailAction, importAction, nil)
	return &fixture{server: server, store: store}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echoContentType, echoJSONType)
	}
	rec := httptest.NewRecorder()
	f.server.Echo.ServeHTTP(rec, req)
	return rec
}

const (
	echoContentType = "Content-Type"
	echoJSONType    = "application/json"
)

func TestRecordLifecycleOverHTTP(t *testing.T) {
	f := newServer(t)

	rec := f.do(t, http.MethodPost, "/api/v1/orgs/1/modules/LEAD/columns",
		`{"name":"Notes","type":"TEXT"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var field datastore.Field
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &field))

	rec = f.do(t, http.MethodPost, "/api/v1/orgs/1/modules/LEAD/records",
		`{"name":"Acme","actor_id":9}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var record datastore.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	require.NotEmpty(t, record.ID)

	rec = f.do(t, http.MethodPatch,
		fmt.Sprintf("/api/v1/orgs/1/records/%s/values/%d", record.ID, field.ID),
		`{"value":"call back","module":"LEAD","actor_id":9}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/orgs/1/modules/LEAD/records", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view board.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Len(t, view.Rows, 1)
	cell := view.Rows[0].Cells["Notes"]
	require.NotNil(t, cell)
	assert.Equal(t, "call back", *cell)

	rec = f.do(t, http.MethodGet,
		fmt.Sprintf("/api/v1/orgs/1/records/%s/history", record.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []datastore.HistoryEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Len(t, history, 2)
}

func TestErrorTaxonomyMapsToStatusCodes(t *testing.T) {
	f := newServer(t)

	rec := f.do(t, http.MethodPatch, "/api/v1/orgs/1/records/missing/values/42",
		`{"value":"x","module":"LEAD","actor_id":9}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/orgs/1/modules/INVALID/records",
		`{"name":"Acme","actor_id":9}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/orgs/1/modules/LEAD/records?filters=not-json", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/jobs/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImportJobEnqueueAndPoll(t *testing.T) {
	f := newServer(t)

	rec := f.do(t, http.MethodPost, "/api/v1/orgs/1/modules/LEAD/columns",
		`{"name":"Type of Facility","type":"MULTISELECT"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/orgs/1/modules/LEAD/bulk/import",
		`{"rows":[{"Company Name":"Acme","Type of Facility":"Hospital, Clinic"}],"actor_id":9}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var enqueue map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &enqueue))
	jobID := enqueue["job_id"]
	require.NotEmpty(t, jobID)

	deadline := time.Now().Add(5 * time.Second)
	var snapshot jobqueue.Snapshot
	for time.Now().Before(deadline) {
		rec = f.do(t, http.MethodGet, "/api/v1/jobs/"+jobID, "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
		if snapshot.Status == "completed" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, "completed", snapshot.Status)
	assert.Equal(t, 100, snapshot.Progress.Percent)

	view, _, err := f.store.ListRecords(1, datastore.ModuleLead, datastore.RecordQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, view, 1)
	assert.Equal(t, "Acme", view[0].Name)
}

func TestBulkEmailValidation(t *testing.T) {
	f := newServer(t)

	rec := f.do(t, http.MethodPost, "/api/v1/orgs/1/modules/LEAD/bulk/email",
		`{"record_ids":[],"subject":"hi","body":"<p>x</p>","actor_id":9}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
