package shift

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"timekeeping/models"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubRepo struct {
	shift *models.Shift
	err   error
	calls atomic.Int32
}

func (s *stubRepo) FindShiftForUser(context.Context, uuid.UUID) (*models.Shift, error) {
	s.calls.Add(1)
	return s.shift, s.err
}

func sampleShift() *models.Shift {
	return &models.Shift{
		ID:                 uuid.New(),
		Name:               "Morning",
		StartTime:          "09:00",
		EndTime:            "17:00",
		GracePeriodMinutes: 10,
	}
}

func TestProvider_CacheMissLoadsAndStores(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	userID := uuid.New()
	s := sampleShift()
	repo := &stubRepo{shift: s}
	ttl := time.Minute

	data, err := json.Marshal(s)
	require.NoError(t, err)

	mock.ExpectGet(CacheKey(userID)).RedisNil()
	mock.ExpectSet(CacheKey(userID), data, ttl).SetVal("OK")

	p := NewProvider(repo, rdb, ttl, zap.NewNop())
	got := p.GetShiftForUser(context.Background(), userID)

	require.NotNil(t, got)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, int32(1), repo.calls.Load())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProvider_CacheHitSkipsRepository(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	userID := uuid.New()
	s := sampleShift()
	data, _ := json.Marshal(s)
	repo := &stubRepo{}

	mock.ExpectGet(CacheKey(userID)).SetVal(string(data))

	got := NewProvider(repo, rdb, time.Minute, zap.NewNop()).GetShiftForUser(context.Background(), userID)

	require.NotNil(t, got)
	assert.Equal(t, "09:00", got.StartTime)
	assert.Equal(t, int32(0), repo.calls.Load())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProvider_FailuresDegradeToNil(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	userID := uuid.New()
	repo := &stubRepo{err: errors.New("db down")}

	mock.ExpectGet(CacheKey(userID)).SetErr(errors.New("redis down"))

	got := NewProvider(repo, rdb, time.Minute, zap.NewNop()).GetShiftForUser(context.Background(), userID)

	assert.Nil(t, got)
	assert.Equal(t, int32(1), repo.calls.Load())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProvider_NoShiftWithoutCache(t *testing.T) {
	repo := &stubRepo{}
	got := NewProvider(repo, nil, 0, zap.NewNop()).GetShiftForUser(context.Background(), uuid.New())
	assert.Nil(t, got)
}

func TestProvider_Invalidate(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	userID := uuid.New()
	mock.ExpectDel(CacheKey(userID)).SetVal(1)

	NewProvider(&stubRepo{}, rdb, time.Minute, zap.NewNop()).Invalidate(context.Background(), userID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
