package middleware

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dtroode/pizzeria-auth/internal/mocks"
	"github.com/dtroode/pizzeria-auth/internal/model"
	"github.com/dtroode/pizzeria-auth/internal/testutil"
)

func TestAuthenticate_AuthFunc(t *testing.T) {
	t.Parallel()

	validClaims := model.AccessClaims{UserID: uuid.New(), Email: "a@x.com", Roles: []string{"customer"}}

	tests := []struct {
		name          string
		mdAuthHeader  string
		expectedToken string
		validatorErr  error
		wantGRPCCode  codes.Code
		wantMsg       string
		expectSetCtx  bool
	}{
		{
			name:         "missing authorization header",
			mdAuthHeader: "",
			wantGRPCCode: codes.Unauthenticated,
			wantMsg:      "missing authorization token",
		},
		{
			name:          "invalid token",
			mdAuthHeader:  "Bearer invalid",
			expectedToken: "invalid",
			validatorErr:  model.ErrInvalidToken,
			wantGRPCCode:  codes.Unauthenticated,
			wantMsg:       "invalid access token",
		},
		{
			name:          "expired token",
			mdAuthHeader:  "Bearer stale",
			expectedToken: "stale",
			validatorErr:  model.ErrExpiredToken,
			wantGRPCCode:  codes.Unauthenticated,
			wantMsg:       "access token expired",
		},
		{
			name:          "valid token",
			mdAuthHeader:  "Bearer token",
			expectedToken: "token",
			wantGRPCCode:  codes.OK,
			expectSetCtx:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			validator := mocks.NewAccessTokenValidator(t)
			cm := mocks.NewContextManager(t)

			if tt.expectedToken != "" {
				claims := model.AccessClaims{}
				if tt.validatorErr == nil {
					claims = validClaims
				}
				validator.On("ValidateAccessToken", mock.Anything, tt.expectedToken).Return(claims, tt.validatorErr)
			}

			ctx := context.Background()
			if tt.mdAuthHeader != "" {
				ctx = metadata.NewIncomingContext(ctx, metadata.Pairs("authorization", tt.mdAuthHeader))
			}

			if tt.expectSetCtx {
				cm.On("SetClaimsToContext", mock.Anything, validClaims).Return(ctx)
			}

			m := NewAuthenticate(validator, cm, testutil.MakeNoopLogger())
			out, err := m.AuthFunc(ctx)

			if tt.wantGRPCCode != codes.OK {
				assert.Nil(t, out)
				st, ok := status.FromError(err)
				assert.True(t, ok)
				assert.Equal(t, tt.wantGRPCCode, st.Code())
				assert.Equal(t, tt.wantMsg, st.Message())
				return
			}

			assert.NoError(t, err)
			assert.NotNil(t, out)
		})
	}
}
