package ws

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tfkr-ae/arsenal/codec"
	"github.com/tfkr-ae/arsenal/model"
)

var message = model.Define("Message",
	model.NewField("id", model.Filter()),
	model.NewField("text"),
)

// setupEchoServer answers every frame with the same frame, except "silent"
// frames which get no answer. It records the request path it was dialed on.
func setupEchoServer(t *testing.T) (string, *string) {
	t.Helper()

	upgrader := websocket.Upgrader{
		CheckOrigin: func(_ *http.Request) bool { return true },
	}
	path := new(string)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*path = r.URL.Path
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()

		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if strings.Contains(string(data), "silent") {
				continue
			}
			if err := conn.WriteMessage(kind, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http"), path
}

func TestConn_Echo(t *testing.T) {
	ctx := context.Background()

	t.Run("should send the bound view and wrap the answer", func(t *testing.T) {
		host, path := setupEchoServer(t)
		v, _ := message.New(map[string]any{"id": 4, "text": "hello"})

		conn, err := Dial(ctx, host, "/rooms/{id}", WithView(v))
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		defer conn.Close()

		got, err := conn.Echo(ctx, nil, time.Second)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if *path != "/rooms/4" {
			t.Fatalf("\nwanted:\n/rooms/4\ngot:\n%s", *path)
		}

		reply, ok := got.(*model.View)
		if !ok {
			t.Fatalf("\nwanted:\n*model.View\ngot:\n%T", got)
		}
		if !reply.Equal(v) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", v, reply)
		}
	})

	t.Run("should send explicit messages with the chosen codec", func(t *testing.T) {
		host, _ := setupEchoServer(t)

		conn, err := Dial(ctx, host, "/", WithCodec(codec.Raw))
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		defer conn.Close()

		got, err := conn.Echo(ctx, "ping", 0)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if got != "ping" {
			t.Fatalf("\nwanted:\nping\ngot:\n%v", got)
		}
	})
}

func TestConn_Recv(t *testing.T) {
	ctx := context.Background()

	t.Run("should time out without a frame", func(t *testing.T) {
		host, _ := setupEchoServer(t)

		conn, err := Dial(ctx, host, "/", WithType(message))
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		defer conn.Close()

		if err := conn.Send(ctx, map[string]any{"text": "silent"}); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if _, err := conn.Recv(50 * time.Millisecond); !errors.Is(err, ErrTimeout) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrTimeout, err)
		}
	})

	t.Run("should wrap lists in sequences", func(t *testing.T) {
		host, _ := setupEchoServer(t)

		conn, _ := Dial(ctx, host, "/", WithType(message))
		defer conn.Close()

		got, err := conn.Echo(ctx, []any{map[string]any{"id": 1}, map[string]any{"id": 2}}, time.Second)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		seq, ok := got.(*model.Sequence[*model.View])
		if !ok || seq.Len() != 2 {
			t.Fatalf("\nwanted:\nsequence of 2\ngot:\n%v", got)
		}
	})
}

func TestConn_Close(t *testing.T) {
	t.Run("should log close frames that cannot be sent", func(t *testing.T) {
		host, _ := setupEchoServer(t)
		var logs bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

		conn, err := Dial(context.Background(), host, "/", WithLogger(logger))
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if err := conn.Close(); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if strings.Contains(logs.String(), "sending close frame") {
			t.Fatalf("\nwanted:\nno close frame error\ngot:\n%s", logs.String())
		}

		conn.Close()
		if !strings.Contains(logs.String(), "sending close frame") {
			t.Fatalf("\nwanted:\nclose frame error logged\ngot:\n%s", logs.String())
		}
	})
}

func TestDial(t *testing.T) {
	t.Run("should fail on unknown codecs", func(t *testing.T) {
		_, err := Dial(context.Background(), "ws://127.0.0.1:1", "/", WithCodec("protobuf"))
		if !errors.Is(err, codec.ErrUnknownCodec) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", codec.ErrUnknownCodec, err)
		}
	})

	t.Run("should fail on non positive timeouts", func(t *testing.T) {
		if _, err := Dial(context.Background(), "ws://127.0.0.1:1", "/", WithTimeout(0)); err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}
	})

	t.Run("should fail when nothing listens", func(t *testing.T) {
		if _, err := Dial(context.Background(), "ws://127.0.0.1:1", "/"); err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}
	})
}
