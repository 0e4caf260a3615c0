package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorText(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{
			name:   "error message object",
			status: 409,
			body:   `{"error_message":{"faultstring":"node locked"}}`,
			want:   "Error 409: node locked",
		},
		{
			name:   "legacy encoded error message",
			status: 404,
			body:   `{"error_message":"{\"faultstring\": \"node not found\"}"}`,
			want:   "Error 404: node not found",
		},
		{
			name:   "title fallback",
			status: 400,
			body:   `{"title":"Bad Request"}`,
			want:   "Error 400: Bad Request",
		},
		{
			name:   "undecodable error message falls back to raw body",
			status: 500,
			body:   `{"error_message":"boom"}`,
			want:   `Error 500: {"error_message":"boom"}`,
		},
		{
			name:   "plain text body",
			status: 503,
			body:   "service unavailable",
			want:   "Error 503: service unavailable",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ErrorText(tc.status, []byte(tc.body)))
		})
	}
}
