package security

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBodyLimitPassesSmallPayload(t *testing.T) {
	var got []byte
	srv := BodyLimit{Max: 64}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"order_type":"pickup"}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"order_type":"pickup"}`, string(got))
}

func TestBodyLimitRejectsOversized(t *testing.T) {
	srv := BodyLimit{Max: 8}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("oversized body must not reach handler")
	}))

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(strings.Repeat("x", 32))))
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	require.Contains(t, rr.Body.String(), "PAYLOAD_TOO_LARGE")
}

func TestBodyLimitRejectsDeclaredLength(t *testing.T) {
	srv := BodyLimit{Max: 8}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("declared oversized body must not reach handler")
	}))

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(strings.Repeat("x", 32)))
	req.ContentLength = 32
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}
