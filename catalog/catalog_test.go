package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalith/dq-check-workflow/checker"
)

// mockCatalog returns queued responses in sequence.
type mockCatalog struct {
	calls     int
	responses []mockResponse
}

type mockResponse struct {
	md  *checker.TableMetadata
	err error
}

func (m *mockCatalog) GetTableMetadata(ctx context.Context, database, table string) (*checker.TableMetadata, error) {
	resp := m.responses[m.calls]
	m.calls++
	return resp.md, resp.err
}

func testMetadata() *checker.TableMetadata {
	return &checker.TableMetadata{
		Database: "sales_db",
		Table:    "orders",
		Columns: []checker.Column{
			{Name: "id", DeclaredType: "integer", Nullable: false, PrimaryKey: true},
			{Name: "amount", DeclaredType: "numeric", Nullable: true},
		},
	}
}

func TestRetryingClientRecoversFromTransientErrors(t *testing.T) {
	mock := &mockCatalog{responses: []mockResponse{
		{err: errors.Wrap(checker.ErrTransientService, "throttled")},
		{err: errors.Wrap(checker.ErrTransientService, "throttled")},
		{md: testMetadata()},
	}}

	client := NewRetryingClient(mock, 3, time.Millisecond)
	md, err := client.GetTableMetadata(context.Background(), "sales_db", "orders")
	require.NoError(t, err)
	assert.Equal(t, 3, mock.calls)
	assert.Len(t, md.Columns, 2)
}

func TestRetryingClientNotFoundFailsImmediately(t *testing.T) {
	notFound := &checker.MetadataNotFoundError{Database: "sales_db", Table: "missing"}
	mock := &mockCatalog{responses: []mockResponse{{err: notFound}}}

	client := NewRetryingClient(mock, 3, time.Millisecond)
	_, err := client.GetTableMetadata(context.Background(), "sales_db", "missing")
	require.Error(t, err)

	var me *checker.MetadataNotFoundError
	assert.ErrorAs(t, err, &me)
	assert.Equal(t, 1, mock.calls, "not-found must not be retried")
}

func TestRetryingClientExhaustsAttempts(t *testing.T) {
	transient := errors.Wrap(checker.ErrTransientService, "connection reset")
	mock := &mockCatalog{responses: []mockResponse{
		{err: transient}, {err: transient}, {err: transient},
	}}

	client := NewRetryingClient(mock, 3, time.Millisecond)
	_, err := client.GetTableMetadata(context.Background(), "sales_db", "orders")
	require.Error(t, err)
	assert.True(t, checker.IsTransient(err))
	assert.Equal(t, 3, mock.calls)
}

func TestRetryingClientHonorsContextCancellation(t *testing.T) {
	transient := errors.Wrap(checker.ErrTransientService, "timeout")
	mock := &mockCatalog{responses: []mockResponse{
		{err: transient}, {err: transient}, {err: transient},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewRetryingClient(mock, 3, time.Minute)
	_, err := client.GetTableMetadata(ctx, "sales_db", "orders")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, mock.calls)
}
