package dispatch

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/dukex/journeys/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessage() *Message {
	return &Message{
		ExecutionID: "exec-1",
		JourneyID:   "j-1",
		NodeID:      "push",
		CustomerID:  "cust-1",
		Channel:     models.ChannelPush,
		Content:     models.MessageContent{Body: "Explore investments"},
	}
}

func TestLogDispatcher(t *testing.T) {
	dispatcher := NewLogDispatcher(slog.New(slog.DiscardHandler))

	result, err := dispatcher.Send(t.Context(), testMessage())
	require.NoError(t, err)
	assert.NotEmpty(t, result.MessageID)

	dispatcher.Unsubscribe("cust-1")

	_, err = dispatcher.Send(t.Context(), testMessage())
	assert.ErrorIs(t, err, ErrUnsubscribed)
}

func TestWebhookDispatcher(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantID   string
		wantErr  error
		httpErr  bool
		attempts int32
	}{
		{name: "accepted", status: http.StatusAccepted, body: `{"message_id":"m-1","status":"queued"}`, wantID: "m-1", attempts: 1},
		{name: "empty body", status: http.StatusOK, body: ``, attempts: 1},
		{name: "gone", status: http.StatusGone, wantErr: ErrUnsubscribed, attempts: 1},
		{name: "unsubscribed body", status: http.StatusOK, body: `{"status":"unsubscribed"}`, wantErr: ErrUnsubscribed, attempts: 1},
		{name: "client error not retried", status: http.StatusBadRequest, body: "bad", httpErr: true, attempts: 1},
		{name: "server error retried", status: http.StatusBadGateway, body: "down", httpErr: true, attempts: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)

				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))

				var msg Message
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
				assert.Equal(t, "Explore investments", msg.Content.Body)

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			dispatcher := NewWebhookDispatcher(WebhookConfig{
				URL:      server.URL,
				Headers:  map[string]string{"X-Api-Key": "secret"},
				Attempts: 3,
			}, slog.New(slog.DiscardHandler))

			result, err := dispatcher.Send(t.Context(), testMessage())

			assert.Equal(t, tt.attempts, calls.Load())

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.httpErr:
				var httpErr *HTTPError
				require.ErrorAs(t, err, &httpErr)
				assert.Equal(t, tt.status, httpErr.StatusCode)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantID, result.MessageID)
			}
		})
	}
}
