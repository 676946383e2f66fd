package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gt3x/internal/fsutil"
	"github.com/banshee-data/gt3x/internal/gt3x"
	"github.com/banshee-data/gt3x/internal/testutil"
)

func getStatus(t *testing.T, h http.Handler) statusReport {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var report statusReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	return report
}

func TestStatusHandlerLifecycle(t *testing.T) {
	input := fixture(t, testutil.DefaultInfo())
	h := newStatusHandler(input)

	before := getStatus(t, h)
	assert.Equal(t, "converting", before.State)
	assert.Equal(t, input, before.Input)

	res, err := convert(context.Background(), conversion{Input: input, Output: "/s.csv", Config: plainConfig(), FS: fsutil.NewMemoryFileSystem()})
	require.NoError(t, err)
	h.finish(res, nil)

	after := getStatus(t, h)
	assert.Equal(t, "done", after.State)
	assert.Equal(t, "MOS2E12345678", after.Serial)
	assert.Equal(t, int64(4), after.Samples)
	assert.Equal(t, int64(2), after.Records)
	require.NotNil(t, after.FirstSample)
	assert.Equal(t, "2023-11-14T22:13:20Z", after.FirstSample.UTC().Format("2006-01-02T15:04:05Z07:00"))
	require.NotNil(t, after.Summary)
	assert.Equal(t, 1, after.Summary.Epochs)
	assert.Empty(t, after.RecordingID)
}

func TestStatusHandlerFailure(t *testing.T) {
	h := newStatusHandler("x.gt3x")
	h.finish(nil, errors.New("open x.gt3x: not found"))

	report := getStatus(t, h)
	assert.Equal(t, "failed", report.State)
	assert.True(t, strings.Contains(report.Error, "not found"))
}

func TestStatusHandlerRejectsPost(t *testing.T) {
	rec := httptest.NewRecorder()
	newStatusHandler("x").ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestStatusHandlerReportsProgress(t *testing.T) {
	input := testutil.WriteGT3X(t, testutil.DefaultInfo(),
		testutil.Record(gt3x.TypeActivity2, testutil.FixtureEpoch, testutil.Int16Payload([3]int32{1, 1, 1})),
		testutil.CorruptChecksum(testutil.Record(gt3x.TypeActivity2, testutil.FixtureEpoch+1, testutil.Int16Payload([3]int32{2, 2, 2}))),
	)
	h := newStatusHandler(input)

	_, err := convert(context.Background(), conversion{
		Input:        input,
		Output:       "/p.csv",
		Config:       plainConfig(),
		FS:           fsutil.NewMemoryFileSystem(),
		Progress:     h,
		OnDiagnostic: h.diagnostic,
	})
	require.NoError(t, err)

	during := getStatus(t, h)
	assert.Equal(t, "converting", during.State)
	assert.Equal(t, int64(2), during.Samples)
	assert.Equal(t, map[string]int{"checksum_mismatch": 1}, during.Diagnostics)
	require.NotNil(t, during.FirstSample)
	require.NotNil(t, during.LastSample)
	assert.Equal(t, time.Second, during.LastSample.Sub(*during.FirstSample))
}

func TestServeMetricsRoutes(t *testing.T) {
	srv, serveErr, err := serveMetrics("127.0.0.1:0", newStatusHandler("x"))
	require.NoError(t, err)

	for _, path := range []string{"/metrics", "/status"} {
		resp, err := http.Get("http://" + srv.Addr + path)
		require.NoError(t, err)
		resp.Body.Close()
		testutil.AssertStatusCode(t, resp.StatusCode, http.StatusOK)
	}

	require.NoError(t, srv.Close())
	err, ok := <-serveErr
	assert.NoError(t, err)
	assert.False(t, ok, "channel closes once the server stops")
}

func TestServeMetricsBusyAddress(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv, serveErr, err := serveMetrics(ln.Addr().String(), newStatusHandler("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics listener")
	assert.Nil(t, srv)
	assert.Nil(t, serveErr)
}
