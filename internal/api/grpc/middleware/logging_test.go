package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dtroode/pizzeria-auth/internal/testutil"
)

func TestLogging_HandleGRPC(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		handler  grpc.UnaryHandler
		wantCode codes.Code
		wantLog  string
	}{
		{
			name: "success path",
			handler: func(ctx context.Context, req interface{}) (interface{}, error) {
				return "ok", nil
			},
			wantCode: codes.OK,
			wantLog:  "gRPC request completed",
		},
		{
			name: "grpc error propagates",
			handler: func(ctx context.Context, req interface{}) (interface{}, error) {
				return nil, status.Error(codes.Unauthenticated, "invalid refresh token")
			},
			wantCode: codes.Unauthenticated,
			wantLog:  "gRPC request rejected",
		},
		{
			name: "non-grpc error becomes Internal",
			handler: func(ctx context.Context, req interface{}) (interface{}, error) {
				return nil, errors.New("boom")
			},
			wantCode: codes.Internal,
			wantLog:  "gRPC request failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			lg, buf := testutil.MakeBufferLogger()
			m := NewLogging(lg)

			info := &grpc.UnaryServerInfo{FullMethod: "/pizzeria.auth.v1.Auth/Login"}
			resp, err := m.HandleGRPC(context.Background(), "secret-password", info, tt.handler)

			out := buf.String()
			assert.Contains(t, out, tt.wantLog)
			assert.Contains(t, out, "/pizzeria.auth.v1.Auth/Login")
			assert.NotContains(t, out, "secret-password")

			if tt.wantCode == codes.OK {
				assert.NoError(t, err)
				assert.Equal(t, "ok", resp)
				return
			}

			assert.Error(t, err)
			if st, ok := status.FromError(err); ok {
				assert.Equal(t, tt.wantCode, st.Code())
			}
		})
	}
}
