package audit

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"fieldsync/internal/domain/audit"
	"fieldsync/internal/domain/session"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Record(ctx context.Context, event audit.Event) {
	m.Called(ctx, event)
}

func (m *MockService) List(ctx context.Context, query audit.Query) ([]audit.Event, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]audit.Event), args.Error(1)
}

func TestHandler_list(t *testing.T) {
	admin := session.WithActor(context.Background(), session.Actor{ID: "adm", Role: session.RoleAdmin})
	tech := session.WithActor(context.Background(), session.Actor{ID: "t-1", Role: session.RoleTechnician})

	tests := []struct {
		name       string
		ctx        context.Context
		events     []audit.Event
		listErr    error
		callsList  bool
		wantStatus int
		wantLen    int
	}{
		{
			name:      "admin lists events",
			ctx:       admin,
			events:    []audit.Event{{ID: 2, Kind: audit.KindClaimAcquired}, {ID: 1, Kind: audit.KindMutationApplied}},
			callsList: true,
			wantLen:   2,
		},
		{
			name:      "empty log",
			ctx:       admin,
			callsList: true,
		},
		{
			name:       "technician is forbidden",
			ctx:        tech,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "anonymous",
			ctx:        context.Background(),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "storage error",
			ctx:        admin,
			listErr:    errors.New("db down"),
			callsList:  true,
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockService)
			handler := NewHandler(service, slog.Default(), nil)

			if tt.callsList {
				service.On("List", mock.Anything, audit.Query{Subject: "task-1", Kind: audit.KindClaimAcquired, Limit: 10}).
					Return(tt.events, tt.listErr)
			}

			out, err := handler.list(tt.ctx, &listInput{Subject: "task-1", Kind: "claim.acquired", Limit: 10})
			if tt.wantStatus != 0 {
				var se huma.StatusError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, tt.wantStatus, se.GetStatus())
			} else {
				require.NoError(t, err)
				assert.NotNil(t, out.Body.Events)
				assert.Len(t, out.Body.Events, tt.wantLen)
			}
			service.AssertExpectations(t)
		})
	}
}
