package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bipbip/bips-backend/internal/models"
	"github.com/bipbip/bips-backend/internal/services"
)

func TestCreateBip(t *testing.T) {
	svc := &fakeBipService{}
	notifier := &fakeNotifier{}
	h := NewBipHandler(svc, notifier, time.Second, zap.NewNop())

	body := `{"pseudo":"Ada","status_code":0,"location":"au siège","latitude":48.8566,"longitude":2.3522,"connection_id":"c1"}`
	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/bips", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp CreateBipResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "bip-1", resp.ID)
	assert.Equal(t, "Bip stacked with ID: bip-1", resp.Message)

	require.Len(t, svc.added, 1)
	in := svc.added[0]
	assert.Equal(t, "Ada", in.Pseudo)
	require.NotNil(t, in.StatusCode)
	assert.Equal(t, 0, *in.StatusCode)
	assert.Equal(t, 48.8566, *in.Latitude)
	assert.Equal(t, "c1", in.ConnectionID)

	assert.Equal(t, []models.PushEvent{models.NewBipEvent()}, notifier.events)
}

func TestCreateBipWithoutRealtime(t *testing.T) {
	svc := &fakeBipService{}
	h := NewBipHandler(svc, nil, time.Second, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/bips", strings.NewReader(`{"pseudo":"Ada","status_code":1,"location":"bar"}`)))

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateBipNotificationFailureStillCreated(t *testing.T) {
	svc := &fakeBipService{}
	notifier := &fakeNotifier{err: storageDown()}
	h := NewBipHandler(svc, notifier, time.Second, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/bips", strings.NewReader(`{"pseudo":"Ada","status_code":1,"location":"bar"}`)))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, svc.added, 1)
}

func TestCreateBipErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		addErr error
		status int
	}{
		{"malformed body", `{"pseudo":`, nil, http.StatusBadRequest},
		{"validation", `{"pseudo":"Ada"}`, errors.Wrap(services.ErrValidation, "status_code is required"), http.StatusBadRequest},
		{"storage down", `{"pseudo":"Ada","status_code":1,"location":"bar"}`, storageDown(), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			notifier := &fakeNotifier{}
			h := NewBipHandler(&fakeBipService{addErr: tc.addErr}, notifier, time.Second, zap.NewNop())

			rec := httptest.NewRecorder()
			h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/bips", strings.NewReader(tc.body)))

			assert.Equal(t, tc.status, rec.Code)
			var resp StatusResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.NotContains(t, resp.Message, "connection refused")
			assert.Empty(t, notifier.events)
		})
	}
}

func TestQueryBips(t *testing.T) {
	lat, lon := 48.8568, 2.3522
	ts := time.Date(2023, 10, 20, 12, 0, 0, 0, time.UTC)
	svc := &fakeBipService{results: []models.BipSummary{
		{Pseudo: "Beda", StatusCode: 100, Timestamp: ts, Latitude: &lat, Longitude: &lon},
		{Pseudo: "Ada", StatusCode: 100, Timestamp: ts.Add(-time.Minute)},
	}}
	h := NewBipHandler(svc, nil, time.Second, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Query(rec, httptest.NewRequest(http.MethodGet, "/api/bips?location=geoloc&latitude=48.8565&longitude=2.3521", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[
		{"pseudo":"Beda","status_code":100,"timestamp":"2023-10-20T12:00:00Z","latitude":48.8568,"longitude":2.3522},
		{"pseudo":"Ada","status_code":100,"timestamp":"2023-10-20T11:59:00Z"}
	]`, rec.Body.String())

	require.Len(t, svc.queries, 1)
	q := svc.queries[0]
	assert.Equal(t, "geoloc", q.Location)
	assert.Equal(t, 48.8565, *q.Latitude)
	assert.Equal(t, 2.3521, *q.Longitude)
}

func TestQueryBipsEmptyIsArray(t *testing.T) {
	h := NewBipHandler(&fakeBipService{}, nil, time.Second, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Query(rec, httptest.NewRequest(http.MethodGet, "/api/bips?location=nowhere", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestQueryBipsErrors(t *testing.T) {
	cases := []struct {
		name     string
		url      string
		queryErr error
		status   int
	}{
		{"missing location", "/api/bips", nil, http.StatusBadRequest},
		{"bad latitude", "/api/bips?location=bar&latitude=north", nil, http.StatusBadRequest},
		{"bad longitude", "/api/bips?location=bar&latitude=1&longitude=east", nil, http.StatusBadRequest},
		{"storage down", "/api/bips?location=bar", storageDown(), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewBipHandler(&fakeBipService{queryErr: tc.queryErr}, nil, time.Second, zap.NewNop())

			rec := httptest.NewRecorder()
			h.Query(rec, httptest.NewRequest(http.MethodGet, tc.url, nil))

			assert.Equal(t, tc.status, rec.Code)
		})
	}
}
