package websockets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishToUser(t *testing.T) {
	hub := NewHub()
	registered := make(chan struct{})
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register("conn-1", "user1", ws)
		close(registered)
		// Keep the connection open until the client hangs up.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				hub.Unregister("conn-1")
				return
			}
		}
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()
	<-registered

	t.Run("Success", func(t *testing.T) {
		msg := Message{Type: MessageTypeNotification, Payload: map[string]string{"message": "hi"}}
		require.NoError(t, hub.PublishToUser(context.Background(), "user1", msg))

		require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
		var got Message
		require.NoError(t, client.ReadJSON(&got))
		assert.Equal(t, MessageTypeNotification, got.Type)
	})

	t.Run("No Connections", func(t *testing.T) {
		assert.NoError(t, hub.PublishToUser(context.Background(), "user2", Message{Type: MessageTypeNotification}))
	})
}
