package utils

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/playlog/backend/utils/dotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	dotenv.LoadDotEnvsInTests()
	os.Exit(m.Run())
}

func TestCreateTempDB(t *testing.T) {
	db, name := CreateTempDB(t)
	require.NotNil(t, db)
	assert.True(t, isTempDB(name))

	exists, err := IsDatabaseExist(name)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestIsRetryableTxError(t *testing.T) {
	for _, tc := range []struct {
		err       error
		retryable bool
	}{
		{&pq.Error{Code: "40001"}, true},
		{&pq.Error{Code: "40P01"}, true},
		{&pq.Error{Code: "23505"}, true},
		{&pq.Error{Code: "23503"}, false},
		{errors.Wrap(&pq.Error{Code: "40001"}, "commit"), true},
		{errors.Wrap(sqlStateErr("40001"), "commit"), true},
		{sqlStateErr("23503"), false},
		{fmt.Errorf("plain error"), false},
		{nil, false},
	} {
		assert.Equal(t, tc.retryable, IsRetryableTxError(tc.err), "%v", tc.err)
	}
}

// sqlStateErr mimics the pgx error type behind gorm's postgres driver.
type sqlStateErr string

func (e sqlStateErr) Error() string    { return "sqlstate " + string(e) }
func (e sqlStateErr) SQLState() string { return string(e) }

func TestRetryTxRetriesConflicts(t *testing.T) {
	calls := 0
	err := RetryTx(context.Background(), 5, func() error {
		calls++
		if calls < 3 {
			return &pq.Error{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryTxStopsOnOtherErrors(t *testing.T) {
	calls := 0
	failure := errors.New("not found")
	err := RetryTx(context.Background(), 5, func() error {
		calls++
		return failure
	})
	assert.Equal(t, failure, err)
	assert.Equal(t, 1, calls)
}

func TestRetryTxGivesUp(t *testing.T) {
	calls := 0
	err := RetryTx(context.Background(), 2, func() error {
		calls++
		return sqlStateErr("40P01")
	})
	assert.True(t, IsRetryableTxError(err))
	assert.Equal(t, 3, calls)

	calls = 0
	err = RetryTx(context.Background(), 0, func() error {
		calls++
		return sqlStateErr("40001")
	})
	assert.True(t, IsRetryableTxError(err))
	assert.Equal(t, 1, calls)
}

func TestRetryTxHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := RetryTx(ctx, 5, func() error {
		calls++
		return &pq.Error{Code: "40001"}
	})
	assert.Equal(t, context.Canceled, err)
	assert.Equal(t, 1, calls)
}
