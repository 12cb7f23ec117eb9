package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImpressionHandlerServesPixel(t *testing.T) {
	s, mr := newTestServer(t, &stubInventory{})

	req := httptest.NewRequest(http.MethodGet, "/track/impression/7?p=4", nil)
	rec := httptest.NewRecorder()
	testRouter(s).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, pixelGIF, rec.Body.Bytes())

	// The counter increment and raw event are detached; give them a moment.
	date := time.Now().UTC().Format("2006-01-02")
	require.Eventually(t, func() bool {
		return mr.HGet("stats:"+date+":7:4", "impressions") == "1"
	}, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(recordedEvents(s)) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "impression", recordedEvents(s)[0].EventType)
	assert.Equal(t, 7, recordedEvents(s)[0].CreativeID)
}

func TestImpressionHandlerBadCreativeID(t *testing.T) {
	s, _ := newTestServer(t, &stubInventory{})

	req := httptest.NewRequest(http.MethodGet, "/track/impression/abc", nil)
	rec := httptest.NewRecorder()
	testRouter(s).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImpressionHandlerWithoutPlacementStillServesPixel(t *testing.T) {
	s, _ := newTestServer(t, &stubInventory{})

	req := httptest.NewRequest(http.MethodGet, "/track/impression/7", nil)
	rec := httptest.NewRecorder()
	testRouter(s).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pixelGIF, rec.Body.Bytes())
}

func TestViewableHandlerIncrementsViewableOnly(t *testing.T) {
	s, mr := newTestServer(t, &stubInventory{})

	req := httptest.NewRequest(http.MethodGet, "/track/viewable/7?p=4", nil)
	rec := httptest.NewRecorder()
	testRouter(s).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	date := time.Now().UTC().Format("2006-01-02")
	require.Eventually(t, func() bool {
		return mr.HGet("stats:"+date+":7:4", "viewable") == "1"
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "", mr.HGet("stats:"+date+":7:4", "impressions"))
}

func TestClickHandlerSafeRedirect(t *testing.T) {
	s, _ := newTestServer(t, &stubInventory{})

	req := httptest.NewRequest(http.MethodGet, "/track/click/7?redirect=https%3A%2F%2Fexample.com%2Flanding", nil)
	rec := httptest.NewRecorder()
	testRouter(s).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://example.com/landing", rec.Header().Get("Location"))

	require.Eventually(t, func() bool {
		return len(recordedEvents(s)) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "click", recordedEvents(s)[0].EventType)
}

func TestClickHandlerRejectsUnsafeRedirect(t *testing.T) {
	s, _ := newTestServer(t, &stubInventory{})

	tests := []struct {
		name     string
		redirect string
	}{
		{"javascript scheme", "javascript%3Aalert(1)"},
		{"private host", "http%3A%2F%2F192.168.1.1%2F"},
		{"metadata endpoint", "http%3A%2F%2F169.254.169.254%2F"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/track/click/7?redirect="+tt.redirect, nil)
			rec := httptest.NewRecorder()
			testRouter(s).ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, rec.Header().Get("Location"))
		})
	}
}

func TestClickHandlerNoRedirect(t *testing.T) {
	s, _ := newTestServer(t, &stubInventory{})

	req := httptest.NewRequest(http.MethodGet, "/track/click/7", nil)
	rec := httptest.NewRecorder()
	testRouter(s).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestClickHandlerBadCreativeID(t *testing.T) {
	s, _ := newTestServer(t, &stubInventory{})

	req := httptest.NewRequest(http.MethodGet, "/track/click/xyz", nil)
	rec := httptest.NewRecorder()
	testRouter(s).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(t, &stubInventory{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	testRouter(s).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	_, err := time.Parse(time.RFC3339, resp.Timestamp)
	assert.NoError(t, err)
}
