package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"realtime-service/internal/middleware"
	"realtime-service/internal/models"
)

const (
	testRoomID  = "3f2a7c1e-8d4b-4e6a-9c0f-1b2d3e4f5a60"
	testBatchID = "c3d4e5f6-a7b8-4c9d-8e0f-1a2b3c4d5e6f"
)

func newTestRouter(userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	})
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body == "" {
		reader = &bytes.Buffer{}
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

type nopNotifier struct{}

func (nopNotifier) NotifyMessage(context.Context, models.ChatRoom, models.Message, []string) {}

func (nopNotifier) NotifyChatInvite(context.Context, models.ChatRoom, string, []string) {}

func (nopNotifier) NotifyMentions(context.Context, string, string, models.SourceRef, []string) {}

type onlineStub []string

func (o onlineStub) OnlineAmong(context.Context, []string) ([]string, error) {
	return o, nil
}

type capturePublisher struct {
	events []any
}

func (p *capturePublisher) Publish(_ context.Context, _ string, event any) error {
	p.events = append(p.events, event)
	return nil
}
