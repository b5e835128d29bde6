package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/CzarCx/qr-brain/internal/metrics"
	"github.com/CzarCx/qr-brain/internal/models"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, body, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(body, &msg))
	return msg
}

func TestNotifier_PushesLoteView(t *testing.T) {
	hub := NewHub(metrics.NewMetrics())
	notifier := NewNotifier(hub)

	lotes := []models.LoteSummary{{LoteP: "8", NameInc: "Luis", Count: 2, TotalEstiTime: 15}}
	notifier.Bind(func(ctx context.Context) ([]models.LoteSummary, error) {
		return lotes, nil
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		initial, err := notifier.Snapshot(r.Context())
		require.NoError(t, err)
		hub.Serve(w, r, initial)
	}))
	defer server.Close()

	conn := dial(t, server)

	first := readMessage(t, conn)
	require.Nil(t, first.Event)
	require.Equal(t, lotes, first.Lotes)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	lotes = append(lotes, models.LoteSummary{LoteP: "9", Count: 1})
	require.NoError(t, notifier.Publish(context.Background(), models.ChangeEvent{Op: models.ChangeInsert, Lote: "9"}))

	second := readMessage(t, conn)
	require.Equal(t, "9", second.Event.Lote)
	require.Len(t, second.Lotes, 2)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestNotifier_DeliversCheckin(t *testing.T) {
	hub := NewHub(nil)
	notifier := NewNotifier(hub)
	notifier.Bind(func(ctx context.Context) ([]models.LoteSummary, error) {
		return nil, nil
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, nil)
	}))
	defer server.Close()

	conn := dial(t, server)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, notifier.Publish(context.Background(), models.ChangeEvent{
		Op:    models.ChangeCheckin,
		Lote:  "8",
		Name:  "Ana",
		Codes: []string{"A"},
	}))

	msg := readMessage(t, conn)
	require.Equal(t, models.ChangeCheckin, msg.Event.Op)
	require.Equal(t, "Ana", msg.Event.Name)
	require.Equal(t, []string{"A"}, msg.Event.Codes)
	require.Empty(t, msg.Lotes)
}

func TestHub_PingsKeepSubscriberAlive(t *testing.T) {
	oldWait, oldPeriod := pongWait, pingPeriod
	pongWait, pingPeriod = 300*time.Millisecond, 50*time.Millisecond
	t.Cleanup(func() { pongWait, pingPeriod = oldWait, oldPeriod })

	hub := NewHub(nil)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, nil)
	}))
	defer server.Close()

	conn := dial(t, server)

	var pings atomic.Int32
	conn.SetPingHandler(func(data string) error {
		pings.Add(1)
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	require.Eventually(t, func() bool { return pings.Load() >= 3 }, 2*time.Second, 10*time.Millisecond)

	// well past pongWait, the subscription is still open
	time.Sleep(2 * pongWait)
	require.Equal(t, 1, hub.Len())

	conn.Close()
	require.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestNotifier_SkipsWithoutSubscribers(t *testing.T) {
	notifier := NewNotifier(NewHub(nil))

	require.NoError(t, notifier.Publish(context.Background(), models.ChangeEvent{Op: models.ChangeDelete}))
}

type publisherFunc func(ctx context.Context, event models.ChangeEvent) error

func (f publisherFunc) Publish(ctx context.Context, event models.ChangeEvent) error {
	return f(ctx, event)
}

func TestFanout_AttemptsEveryPublisher(t *testing.T) {
	calls := 0
	failing := publisherFunc(func(context.Context, models.ChangeEvent) error {
		calls++
		return errors.New("bus down")
	})
	ok := publisherFunc(func(context.Context, models.ChangeEvent) error {
		calls++
		return nil
	})

	err := Fanout{failing, nil, ok}.Publish(context.Background(), models.ChangeEvent{Op: models.ChangeMove})
	require.EqualError(t, err, "bus down")
	require.Equal(t, 2, calls)
}
