package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/slotwise/internal/shared/domain"
	"github.com/felixgeelhaar/slotwise/pkg/observability"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type txKey struct{}

type mockUnitOfWork struct {
	mock.Mock
}

func (m *mockUnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(context.Context), args.Error(1)
}

func (m *mockUnitOfWork) Commit(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockUnitOfWork) Rollback(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestWithUnitOfWork(t *testing.T) {
	ctx := context.Background()
	txCtx := context.WithValue(ctx, txKey{}, "tx")

	t.Run("commits on success", func(t *testing.T) {
		uow := new(mockUnitOfWork)
		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Commit", txCtx).Return(nil)

		err := WithUnitOfWork(ctx, uow, func(got context.Context) error {
			assert.Equal(t, txCtx, got)
			return nil
		})

		require.NoError(t, err)
		uow.AssertExpectations(t)
		uow.AssertNotCalled(t, "Rollback", mock.Anything)
	})

	t.Run("rolls back and joins rollback failure", func(t *testing.T) {
		uow := new(mockUnitOfWork)
		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Rollback", txCtx).Return(errors.New("connection reset"))
		fnErr := errors.New("insert failed")

		err := WithUnitOfWork(ctx, uow, func(context.Context) error { return fnErr })

		require.Error(t, err)
		assert.ErrorIs(t, err, fnErr)
		assert.Contains(t, err.Error(), "connection reset")
		uow.AssertNotCalled(t, "Commit", mock.Anything)
	})

	t.Run("begin failure skips fn", func(t *testing.T) {
		uow := new(mockUnitOfWork)
		uow.On("Begin", ctx).Return(nil, errors.New("pool closed"))
		called := false

		err := WithUnitOfWork(ctx, uow, func(context.Context) error { called = true; return nil })

		require.Error(t, err)
		assert.False(t, called)
	})

	t.Run("expired context rolls back instead of committing", func(t *testing.T) {
		expired, cancel := context.WithTimeout(ctx, time.Nanosecond)
		defer cancel()
		<-expired.Done()
		expiredTx := context.WithValue(expired, txKey{}, "tx")

		uow := new(mockUnitOfWork)
		uow.On("Begin", expired).Return(expiredTx, nil)
		uow.On("Rollback", expiredTx).Return(nil)

		err := WithUnitOfWork(expired, uow, func(context.Context) error { return nil })

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		uow.AssertNotCalled(t, "Commit", mock.Anything)
	})

	t.Run("panic rolls back and re-panics", func(t *testing.T) {
		uow := new(mockUnitOfWork)
		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Rollback", txCtx).Return(nil)

		assert.Panics(t, func() {
			_ = WithUnitOfWork(ctx, uow, func(context.Context) error { panic("boom") })
		})
		uow.AssertCalled(t, "Rollback", txCtx)
	})
}

type testEvent struct {
	domain.BaseEvent
}

func TestEventMetadata(t *testing.T) {
	t.Run("reuses uuid correlation id from context", func(t *testing.T) {
		corr := uuid.New()
		ctx := observability.WithCorrelationID(context.Background(), corr.String())
		actor := uuid.New()

		meta := NewEventMetadata(ctx, actor)

		assert.Equal(t, corr, meta.CorrelationID)
		assert.Equal(t, actor, meta.ActorID)
		assert.NotEqual(t, uuid.Nil, meta.CausationID)
	})

	t.Run("generates correlation id when context has none", func(t *testing.T) {
		meta := NewEventMetadata(context.Background(), uuid.Nil)
		assert.NotEqual(t, uuid.Nil, meta.CorrelationID)
	})

	t.Run("applies to every event with a setter", func(t *testing.T) {
		e1 := &testEvent{BaseEvent: domain.NewBaseEvent(uuid.New(), "Booking", "booking.created", time.Now())}
		e2 := &testEvent{BaseEvent: domain.NewBaseEvent(uuid.New(), "Booking", "booking.accepted", time.Now())}
		meta := NewEventMetadata(context.Background(), uuid.New())

		ApplyEventMetadata([]domain.DomainEvent{e1, e2}, meta)

		assert.Equal(t, meta, e1.Metadata())
		assert.Equal(t, meta, e2.Metadata())
		assert.NotPanics(t, func() { ApplyEventMetadata(nil, meta) })
	})
}
