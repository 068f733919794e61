package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

// MockRepository is a mock implementation of the Repository interface for testing
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Validate(ctx context.Context, tokenHash string) (Actor, error) {
	args := m.Called(ctx, tokenHash)
	return args.Get(0).(Actor), args.Error(1)
}

func TestService_Validate(t *testing.T) {
	mockRepo := new(MockRepository)
	service := NewService(mockRepo, slog.Default())

	token := "upstream-issued-token"
	actor := Actor{ID: "tech-1", Role: RoleTechnician}

	mockRepo.On("Validate", mock.Anything, HashToken(token)).Return(actor, nil)

	got, err := service.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, actor, got)

	mockRepo.AssertExpectations(t)
}

func TestService_Validate_Errors(t *testing.T) {
	tests := []struct {
		name      string
		token     string
		repoErr   error
		expectErr error
	}{
		{
			name:      "Empty token is rejected without lookup",
			token:     "",
			expectErr: ErrInvalidSession,
		},
		{
			name:      "Unknown token",
			token:     "expired",
			repoErr:   ErrInvalidSession,
			expectErr: ErrInvalidSession,
		},
		{
			name:    "Repository failure",
			token:   "whatever",
			repoErr: errors.New("database error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockRepository)
			service := NewService(mockRepo, slog.Default())

			if tt.token != "" {
				mockRepo.On("Validate", mock.Anything, HashToken(tt.token)).Return(Actor{}, tt.repoErr)
			}

			_, err := service.Validate(context.Background(), tt.token)
			assert.Error(t, err)
			if tt.expectErr != nil {
				assert.ErrorIs(t, err, tt.expectErr)
			}

			mockRepo.AssertExpectations(t)
		})
	}
}

func TestHashToken(t *testing.T) {
	h := HashToken("abc")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashToken("abc"))
	assert.NotEqual(t, h, HashToken("abd"))
}

func TestActorContext(t *testing.T) {
	_, ok := ActorFrom(context.Background())
	assert.False(t, ok)

	ctx := WithActor(context.Background(), Actor{ID: "a-1", Role: RoleOffice})
	actor, ok := ActorFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "a-1", actor.ID)
	assert.False(t, actor.CanDoFieldWork())

	assert.True(t, Actor{ID: "t", Role: RoleTechnician}.CanDoFieldWork())
	assert.True(t, Actor{ID: "a", Role: RoleAdmin}.CanDoFieldWork())
	assert.True(t, Actor{ID: "a", Role: RoleAdmin}.IsAdmin())
	assert.False(t, Actor{ID: "c", Role: RoleCustomer}.CanDoFieldWork())
}
