package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalith/dq-check-workflow/checks"
	"github.com/datalith/dq-check-workflow/report"
)

func TestLocalFSClientWrite(t *testing.T) {
	dir := t.TempDir()
	client, err := NewLocalFSClient(dir)
	require.NoError(t, err)
	defer client.Close()

	err = client.Write(context.Background(), "sales_db/orders/20250601_120000/report.json", []byte(`{"status":"SUCCESS"}`), "application/json")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "sales_db", "orders", "20250601_120000", "report.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"status":"SUCCESS"}`, string(data))
}

func TestLocalFSClientRejectsEscapingKeys(t *testing.T) {
	dir := t.TempDir()
	client, err := NewLocalFSClient(dir)
	require.NoError(t, err)

	err = client.Write(context.Background(), "../outside.json", []byte("x"), "application/json")
	assert.Error(t, err)

	err = client.Write(context.Background(), "/etc/passwd", []byte("x"), "application/json")
	assert.Error(t, err)
}

func TestLocalFSClientLocation(t *testing.T) {
	dir := t.TempDir()
	client, err := NewLocalFSClient(dir)
	require.NoError(t, err)

	loc := client.Location("a/b/report.json")
	assert.True(t, strings.HasPrefix(loc, "file://"))
	assert.True(t, strings.HasSuffix(loc, "a/b/report.json"))
}

type flakyClient struct {
	failures int
	calls    int
	err      error
}

func (f *flakyClient) Write(ctx context.Context, key string, data []byte, contentType string) error {
	f.calls++
	if f.calls <= f.failures {
		if f.err != nil {
			return f.err
		}
		return errors.New("transient write failure")
	}
	return nil
}

func (f *flakyClient) Location(key string) string { return "mock://" + key }
func (f *flakyClient) Close() error               { return nil }

func TestRetryableClientRecovers(t *testing.T) {
	inner := &flakyClient{failures: 2}
	client := NewRetryableClient(inner, 3)
	client.retryDelay = time.Millisecond

	err := client.Write(context.Background(), "k", []byte("v"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryableClientExhaustsRetries(t *testing.T) {
	inner := &flakyClient{failures: 10}
	client := NewRetryableClient(inner, 2)
	client.retryDelay = time.Millisecond

	err := client.Write(context.Background(), "k", []byte("v"), "text/plain")
	require.Error(t, err)
	assert.Equal(t, 3, inner.calls, "initial attempt plus two retries")
}

func TestRetryableClientStopsOnCancellation(t *testing.T) {
	inner := &flakyClient{failures: 10}
	client := NewRetryableClient(inner, 5)
	client.retryDelay = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.Write(ctx, "k", []byte("v"), "text/plain")
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls, "cancelled context must not keep retrying")
}

func TestRetryableClientStopsOnWrappedCancellation(t *testing.T) {
	inner := &flakyClient{failures: 10, err: errors.Wrap(context.Canceled, "upload aborted")}
	client := NewRetryableClient(inner, 5)
	client.retryDelay = time.Millisecond

	err := client.Write(context.Background(), "k", []byte("v"), "text/plain")
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls, "wrapped cancellation errors must not be retried")
}

func sampleReport() *report.QualityReport {
	return &report.QualityReport{
		Status:    report.StatusSuccess,
		Database:  "sales_db",
		Table:     "orders",
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		ExecutionSummary: report.ExecutionSummary{
			ChecksPerformed: 2,
			ChecksPassed:    2,
			QualityScore:    100,
		},
		Checks: []checks.CheckResult{
			{CheckID: "null_check_id", Category: checks.CategoryCompleteness, Passed: true, Severity: checks.SeverityInfo, Message: "ok"},
			{CheckID: "uniqueness_check_id", Category: checks.CategoryUniqueness, Passed: true, Severity: checks.SeverityInfo, Message: "ok"},
		},
		Warnings: []string{},
	}
}

func TestReportStoreSave(t *testing.T) {
	dir := t.TempDir()
	client, err := NewLocalFSClient(dir)
	require.NoError(t, err)

	store := NewReportStore(client, "quality-checks")
	store.timeNow = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}

	location, err := store.Save(context.Background(), sampleReport())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(location, "quality-checks/sales_db/orders/20250601_120000/report.json"))

	base := filepath.Join(dir, "quality-checks", "sales_db", "orders", "20250601_120000")

	data, err := os.ReadFile(filepath.Join(base, "report.json"))
	require.NoError(t, err)
	var decoded report.QualityReport
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, report.StatusSuccess, decoded.Status)
	assert.Len(t, decoded.Checks, 2)

	md, err := os.ReadFile(filepath.Join(base, "report.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "# Data Quality Report for sales_db.orders")

	xlsx, err := os.ReadFile(filepath.Join(base, "summary.xlsx"))
	require.NoError(t, err)
	assert.NotEmpty(t, xlsx)
}

func TestChecksWorkbook(t *testing.T) {
	data, err := ChecksWorkbook(sampleReport())
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	// XLSX files are zip archives.
	assert.Equal(t, "PK", string(data[:2]))
}

func TestNewClientRejectsUnknownType(t *testing.T) {
	_, err := NewClient(Config{Type: "FTP"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage type")
}
