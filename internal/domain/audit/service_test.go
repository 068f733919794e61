package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Append(ctx context.Context, event *Event, link func(prevHash string)) error {
	args := m.Called(ctx, event)
	if err := args.Error(1); err != nil {
		return err
	}
	link(args.String(0))
	return nil
}

func (m *MockRepository) List(ctx context.Context, query Query) ([]Event, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Event), args.Error(1)
}

func TestService_Record_LinksChain(t *testing.T) {
	mockRepo := new(MockRepository)
	service := NewService(mockRepo, slog.Default())
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return fixed }

	var appended []*Event
	mockRepo.On("Append", mock.Anything, mock.AnythingOfType("*audit.Event")).
		Run(func(args mock.Arguments) {
			appended = append(appended, args.Get(1).(*Event))
		}).Return("", nil).Once()

	service.Record(context.Background(), Event{
		Kind:    KindClaimAcquired,
		ActorID: "tech-a",
		Subject: "T1",
		Details: map[string]any{"expires_at": "later"},
	})

	require.Len(t, appended, 1)
	first := *appended[0]
	assert.Equal(t, "", first.PrevHash)
	assert.Equal(t, fixed, first.CreatedAt)
	assert.Equal(t, PayloadHash(first.Details), first.PayloadHash)
	assert.Len(t, first.EventHash, 64)

	mockRepo.On("Append", mock.Anything, mock.AnythingOfType("*audit.Event")).
		Run(func(args mock.Arguments) {
			appended = append(appended, args.Get(1).(*Event))
		}).Return(first.EventHash, nil).Once()
	service.Record(context.Background(), Event{Kind: KindClaimReleased, ActorID: "tech-a", Subject: "T1"})

	require.Len(t, appended, 2)
	second := *appended[1]
	assert.Equal(t, first.EventHash, second.PrevHash)
	assert.NoError(t, Verify([]Event{first, second}))

	mockRepo.AssertExpectations(t)
}

func TestService_Record_SwallowsErrors(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(*MockRepository)
	}{
		{
			name: "Append fails",
			setupMock: func(m *MockRepository) {
				m.On("Append", mock.Anything, mock.Anything).Return("", errors.New("db down"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockRepository)
			tt.setupMock(mockRepo)
			service := NewService(mockRepo, slog.Default())

			assert.NotPanics(t, func() {
				service.Record(context.Background(), Event{Kind: KindMutationApplied, Subject: "m-1"})
			})
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestService_List_ClampsLimit(t *testing.T) {
	mockRepo := new(MockRepository)
	service := NewService(mockRepo, slog.Default())

	mockRepo.On("List", mock.Anything, Query{Limit: 50}).Return([]Event{}, nil)

	_, err := service.List(context.Background(), Query{Limit: 10000, Offset: -3})
	require.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestVerify_DetectsTampering(t *testing.T) {
	a := Event{ID: 1, Kind: KindMutationApplied, Subject: "m-1", CreatedAt: time.Unix(100, 0)}
	a.PayloadHash = PayloadHash(nil)
	a.EventHash = ComputeHash(a)

	b := Event{ID: 2, Kind: KindMutationApplied, Subject: "m-2", PrevHash: a.EventHash, CreatedAt: time.Unix(200, 0)}
	b.PayloadHash = PayloadHash(nil)
	b.EventHash = ComputeHash(b)

	require.NoError(t, Verify([]Event{a, b}))

	tampered := b
	tampered.Subject = "m-3"
	assert.ErrorIs(t, Verify([]Event{a, tampered}), ErrBrokenChain)

	unlinked := b
	unlinked.PrevHash = "deadbeef"
	unlinked.EventHash = ComputeHash(unlinked)
	assert.ErrorIs(t, Verify([]Event{a, unlinked}), ErrBrokenChain)
}
