package receiver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	ratelimit "github.com/CrumpLab/vertical/pkg/rate"
	"github.com/CrumpLab/vertical/pkg/submission"
	"github.com/CrumpLab/vertical/pkg/submission/memory"
	"github.com/CrumpLab/vertical/pkg/submit"
	"github.com/CrumpLab/vertical/pkg/submit/payload"
	"github.com/CrumpLab/vertical/pkg/trial"
)

type failingStore struct {
	submission.Store
}

func (failingStore) Put(context.Context, *submission.Record) error {
	return errors.New("disk full")
}

func newStore(t *testing.T) submission.Store {
	store, err := memory.New(0)
	require.NoError(t, err)
	return store
}

func post(t *testing.T, s http.Handler, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	resp := &payload.ErrorResponse{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(resp))
	return resp.Message
}

func TestServeHTTP(t *testing.T) {
	store := newStore(t)
	s := New(store)

	data := "\"rt\"\r\n\"512\"\r\n"
	b, err := json.Marshal(&payload.Request{Filename: payload.DefaultFilename, Filedata: data})
	require.NoError(t, err)

	rec := post(t, s, "application/json; charset=utf-8", string(b))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	receipt := &payload.Receipt{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(receipt))
	assert.NotEmpty(t, receipt.ID)
	assert.Equal(t, payload.DefaultFilename, receipt.Filename)
	assert.Equal(t, len(data), receipt.Bytes)

	r, err := store.Get(context.Background(), receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, data, r.Data)
	assert.Equal(t, payload.DefaultFilename, r.Filename)
	assert.False(t, r.ReceivedAt.IsZero())
}

func TestServeHTTP_EmptyExport(t *testing.T) {
	store := newStore(t)
	s := New(store)

	rec := post(t, s, "application/json", `{"filename":"empty_run","filedata":""}`)
	require.Equal(t, http.StatusOK, rec.Code)

	records, err := store.List(context.Background(), "empty_run")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].Data)
}

func TestServeHTTP_Rejections(t *testing.T) {
	s := New(newStore(t), WithMaxBodyBytes(64))

	req := httptest.NewRequest(http.MethodGet, "/submit", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))

	for _, tc := range []struct {
		name        string
		contentType string
		body        string
		status      int
	}{
		{"no content type", "", `{"filename":"a","filedata":""}`, http.StatusUnsupportedMediaType},
		{"text content type", "text/plain", `{"filename":"a","filedata":""}`, http.StatusUnsupportedMediaType},
		{"malformed", "application/json", `{"filename":`, http.StatusBadRequest},
		{"unknown key", "application/json", `{"filename":"a","filedata":"","extra":1}`, http.StatusBadRequest},
		{"missing filename", "application/json", `{"filedata":"x"}`, http.StatusBadRequest},
		{"traversal", "application/json", `{"filename":"../../etc/passwd","filedata":"x"}`, http.StatusBadRequest},
		{"too large", "application/json", `{"filename":"a","filedata":"` + strings.Repeat("x", 64) + `"}`, http.StatusRequestEntityTooLarge},
	} {
		rec := post(t, s, tc.contentType, tc.body)
		assert.Equal(t, tc.status, rec.Code, tc.name)
		assert.NotEmpty(t, decodeError(t, rec), tc.name)
	}
}

func TestServeHTTP_RateLimited(t *testing.T) {
	s := New(newStore(t), WithLimiter(ratelimit.NewLocalRateLimiter(rate.Limit(1))))

	body := `{"filename":"a","filedata":""}`
	assert.Equal(t, http.StatusOK, post(t, s, "application/json", body).Code)

	rec := post(t, s, "application/json", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "too many submissions", decodeError(t, rec))
}

func TestServeHTTP_StoreFailure(t *testing.T) {
	s := New(failingStore{})

	rec := post(t, s, "application/json", `{"filename":"a","filedata":""}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "failed to store submission", decodeError(t, rec))
}

func TestSubmitterRoundTrip(t *testing.T) {
	store := newStore(t)

	mux := http.NewServeMux()
	mux.Handle("/"+payload.DefaultPath, New(store))
	server := httptest.NewServer(mux)
	defer server.Close()

	c := trial.NewCollector(
		trial.New(trial.Field{Key: "trial_type", Value: "html-keyboard-response"}, trial.Field{Key: "rt", Value: 421.0}),
		trial.New(trial.Field{Key: "trial_type", Value: "survey-text"}, trial.Field{Key: "response", Value: map[string]interface{}{"Q0": "fine"}}),
	)
	expected, err := c.CSV()
	require.NoError(t, err)

	s, err := submit.New(server.URL + "/index.html")
	require.NoError(t, err)

	receipt, err := s.SaveLocally(context.Background(), c).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, payload.DefaultFilename, receipt.Filename)

	r, err := store.Get(context.Background(), receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, expected, r.Data)

	// Rejections surface as transmit errors on the submitting side.
	s, err = submit.New(server.URL, submit.WithFilename("../nope"))
	require.NoError(t, err)

	_, err = s.Submit(context.Background(), c)
	transmitErr, ok := err.(*submit.TransmitError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, transmitErr.StatusCode)
	assert.Equal(t, payload.ErrInvalidFilename.Error(), transmitErr.Message)
}

func TestRemoteHost(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/submit", bytes.NewReader(nil))
	req.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "10.1.2.3", remoteHost(req))

	req.RemoteAddr = "unix"
	assert.Equal(t, "unix", remoteHost(req))
}
