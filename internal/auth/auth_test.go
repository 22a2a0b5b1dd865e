package auth

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-telemetry/internal/apperr"
	"tenant-telemetry/internal/model"
)

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		header string
		url    string
		want   string
	}{
		{"bearer header", "Bearer abc", "/ws", "abc"},
		{"lowercase scheme", "bearer  xyz ", "/ws", "xyz"},
		{"query param", "", "/ws?token=q1", "q1"},
		{"header wins over query", "Bearer h1", "/ws?token=q1", "h1"},
		{"non-bearer header falls back to query", "Basic foo", "/ws?token=q2", "q2"},
		{"nothing", "", "/ws", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.url, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, TokenFromRequest(r))
		})
	}
}

func TestStatic(t *testing.T) {
	a := NewStatic()
	p := model.Principal{UserID: "u1", Role: model.RoleMember, CompanyID: "c1"}
	a.Add("t1", p)

	got, err := a.Authenticate(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = a.Authenticate(context.Background(), "nope")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestFromRequest_MissingToken(t *testing.T) {
	_, err := FromRequest(httptest.NewRequest("GET", "/api/sensors", nil), NewStatic())
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestDecodePrincipal(t *testing.T) {
	p, err := decodePrincipal([]byte(`{"userId":"u1","role":"CompanyAdmin","companyId":"c1"}`))
	require.NoError(t, err)
	assert.Equal(t, model.RoleTenantAdmin, p.Role)

	_, err = decodePrincipal([]byte(`{"userId":"u1","role":"Root"}`))
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = decodePrincipal([]byte(`not json`))
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}
