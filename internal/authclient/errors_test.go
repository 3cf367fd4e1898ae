package authclient

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseServiceError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantCode    string
		wantMessage string
		wantClient  bool
	}{
		{
			name:        "gotrue error",
			status:      http.StatusBadRequest,
			body:        `{"code":400,"error_code":"invalid_credentials","msg":"Invalid login credentials"}`,
			wantCode:    "invalid_credentials",
			wantMessage: "Invalid login credentials",
			wantClient:  true,
		},
		{
			name:        "oauth error",
			status:      http.StatusBadRequest,
			body:        `{"error":"invalid_grant","error_description":"Invalid Refresh Token"}`,
			wantCode:    "invalid_grant",
			wantMessage: "Invalid Refresh Token",
			wantClient:  true,
		},
		{
			name:        "api gateway message",
			status:      http.StatusUnauthorized,
			body:        `{"message":"Invalid API key"}`,
			wantMessage: "Invalid API key",
			wantClient:  true,
		},
		{
			name:        "rate limited",
			status:      http.StatusTooManyRequests,
			body:        `{"code":"over_request_rate_limit","msg":"Rate limit exceeded"}`,
			wantCode:    "over_request_rate_limit",
			wantMessage: "Rate limit exceeded",
		},
		{
			name:        "plain text",
			status:      http.StatusBadGateway,
			body:        "upstream timed out",
			wantMessage: "upstream timed out",
		},
		{
			name:        "empty body",
			status:      http.StatusInternalServerError,
			wantMessage: "auth service returned HTTP 500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{
				StatusCode: tt.status,
				Body:       io.NopCloser(strings.NewReader(tt.body)),
			}

			se := parseServiceError(resp)
			assert.Equal(t, tt.status, se.Status)
			assert.Equal(t, tt.wantCode, se.Code)
			assert.Equal(t, tt.wantMessage, se.Error())
			assert.Equal(t, tt.wantClient, se.IsClientError())
		})
	}
}

func TestFingerprint(t *testing.T) {
	assert.Empty(t, Fingerprint(""))

	fp := Fingerprint("refresh-token")
	assert.Len(t, fp, 12)
	assert.Equal(t, fp, Fingerprint("refresh-token"))
	assert.NotEqual(t, fp, Fingerprint("other-token"))
}
