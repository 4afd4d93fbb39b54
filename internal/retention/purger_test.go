package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rajyaabhishek/LawX-sub001/internal/media"
	"github.com/rajyaabhishek/LawX-sub001/internal/mocks"
)

func fixedPurger(store Store, batch int, at time.Time) *Purger {
	p := NewPurger(store, new(mocks.ImageStoreMock), time.Hour, batch)
	p.now = func() time.Time { return at }
	return p
}

func TestSweepDrainsInBatches(t *testing.T) {
	store := new(mocks.MessageRepositoryMock)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.On("PurgeExpired", mock.Anything, at, 100).Return(int64(100), nil, nil).Twice()
	store.On("PurgeExpired", mock.Anything, at, 100).Return(int64(7), nil, nil).Once()

	n, err := fixedPurger(store, 100, at).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(207), n)
	store.AssertNumberOfCalls(t, "PurgeExpired", 3)
}

func TestSweepNothingExpired(t *testing.T) {
	store := new(mocks.MessageRepositoryMock)
	at := time.Now()
	store.On("PurgeExpired", mock.Anything, at, 50).Return(int64(0), nil, nil).Once()

	n, err := fixedPurger(store, 50, at).Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	store.AssertExpectations(t)
}

func TestSweepStopsOnError(t *testing.T) {
	store := new(mocks.MessageRepositoryMock)
	at := time.Now()
	store.On("PurgeExpired", mock.Anything, at, 10).Return(int64(10), nil, nil).Once()
	store.On("PurgeExpired", mock.Anything, at, 10).Return(int64(0), nil, errors.New("lock timeout")).Once()

	n, err := fixedPurger(store, 10, at).Sweep(context.Background())
	require.Error(t, err)
	assert.Equal(t, int64(10), n)
	store.AssertExpectations(t)
}

func TestSweepRemovesImagesOfPurgedMessages(t *testing.T) {
	store := new(mocks.MessageRepositoryMock)
	images := new(mocks.ImageStoreMock)
	at := time.Now()
	urls := []string{"/api/v1/media/a", "/api/v1/media/b"}
	store.On("PurgeExpired", mock.Anything, at, 10).Return(int64(3), urls, nil).Once()
	images.On("Delete", mock.Anything, "/api/v1/media/a").Return(nil).Once()
	images.On("Delete", mock.Anything, "/api/v1/media/b").Return(media.ErrImageNotFound).Once()

	p := NewPurger(store, images, time.Hour, 10)
	p.now = func() time.Time { return at }
	n, err := p.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	images.AssertExpectations(t)
}

func TestSweepKeepsMessagesWhenImageRemovalFails(t *testing.T) {
	store := new(mocks.MessageRepositoryMock)
	images := new(mocks.ImageStoreMock)
	at := time.Now()
	store.On("PurgeExpired", mock.Anything, at, 10).Return(int64(1), []string{"/api/v1/media/a"}, nil).Once()
	images.On("Delete", mock.Anything, "/api/v1/media/a").Return(errors.New("mongo unavailable")).Once()

	p := NewPurger(store, images, time.Hour, 10)
	p.now = func() time.Time { return at }
	n, err := p.Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mongo unavailable")
	assert.Zero(t, n)
	store.AssertExpectations(t)
}

func TestRunSweepsAtStartAndStops(t *testing.T) {
	store := new(mocks.MessageRepositoryMock)
	swept := make(chan struct{}, 1)
	store.On("PurgeExpired", mock.Anything, mock.Anything, 1000).
		Run(func(mock.Arguments) {
			select {
			case swept <- struct{}{}:
			default:
			}
		}).
		Return(int64(0), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewPurger(store, nil, time.Hour, 0).Run(ctx)
		close(done)
	}()

	select {
	case <-swept:
	case <-time.After(2 * time.Second):
		t.Fatal("no sweep at start")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("purger did not stop")
	}
}
