package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"realtime-service/internal/mocks"
	"realtime-service/internal/models"
	"realtime-service/internal/repositories"
)

func setupDeviceRouter(tokens *mocks.DeviceTokenRepositoryMock) http.Handler {
	handler := NewDeviceHandler(tokens, zap.NewNop())
	r := newTestRouter("alice")
	r.POST("/devices", handler.Register)
	r.DELETE("/devices/:token", handler.Revoke)
	return r
}

func TestRegisterDevice(t *testing.T) {
	tokens := new(mocks.DeviceTokenRepositoryMock)
	r := setupDeviceRouter(tokens)
	tokens.On("RegisterDeviceToken", mock.Anything, mock.MatchedBy(func(d models.DeviceToken) bool {
		return d.UserID == "alice" && d.Token == "fcm-1" && d.Platform == models.PlatformAndroid
	})).Return(models.DeviceToken{ID: "d1", UserID: "alice", Token: "fcm-1", Platform: models.PlatformAndroid, IsActive: true}, nil).Once()

	rec := doJSON(t, r, http.MethodPost, "/devices", `{"token":"fcm-1","platform":"android"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, true, decode(t, rec)["is_active"])
	tokens.AssertExpectations(t)
}

func TestRegisterDeviceValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing token", `{"platform":"ios"}`},
		{"unknown platform", `{"token":"t","platform":"symbian"}`},
		{"malformed", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := new(mocks.DeviceTokenRepositoryMock)
			rec := doJSON(t, setupDeviceRouter(tokens), http.MethodPost, "/devices", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			tokens.AssertNotCalled(t, "RegisterDeviceToken", mock.Anything, mock.Anything)
		})
	}
}

func TestRevokeDevice(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"revoked", nil, http.StatusNoContent},
		{"unknown", repositories.ErrDeviceTokenNotFound, http.StatusNotFound},
		{"store failure", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := new(mocks.DeviceTokenRepositoryMock)
			tokens.On("RevokeDeviceToken", mock.Anything, "alice", "fcm-1").Return(tt.err).Once()

			rec := doJSON(t, setupDeviceRouter(tokens), http.MethodDelete, "/devices/fcm-1", "")
			assert.Equal(t, tt.status, rec.Code)
			tokens.AssertExpectations(t)
		})
	}
}
