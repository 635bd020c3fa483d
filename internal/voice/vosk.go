package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// voskIOTimeout bounds every dial, read and write on the socket.
var voskIOTimeout = 2 * time.Second

type voskReply struct {
	Text    *string `json:"text"`
	Partial string  `json:"partial"`
}

// voskRecognizer streams PCM to a vosk-server instance. One websocket is one
// recognizer: replacing the recognizer opens a new socket, which gives the
// server a fresh decoder with no carried-over context.
type voskRecognizer struct {
	conn    *websocket.Conn
	result  string
	partial string
}

// NewVoskFactory returns a factory that dials rawurl (ws, wss, http or https)
// and configures the stream for mono 16-bit PCM at sampleRate.
func NewVoskFactory(rawurl string, sampleRate int) (RecognizerFactory, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, E(KindConfig, "parse vosk url", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, Errorf(KindConfig, "parse vosk url", "unsupported scheme %q", u.Scheme)
	}
	target := u.String()

	return func() (Recognizer, error) {
		ctx, cancel := context.WithTimeout(context.Background(), voskIOTimeout)
		defer cancel()
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
		if err != nil {
			return nil, E(KindRecognizer, "dial vosk", err)
		}
		cfg := map[string]any{"config": map[string]any{"sample_rate": sampleRate}}
		_ = conn.SetWriteDeadline(time.Now().Add(voskIOTimeout))
		if err := conn.WriteJSON(cfg); err != nil {
			_ = conn.Close()
			return nil, E(KindRecognizer, "configure vosk", err)
		}
		return &voskRecognizer{conn: conn}, nil
	}, nil
}

func (r *voskRecognizer) Accept(pcm []byte) (bool, error) {
	_ = r.conn.SetWriteDeadline(time.Now().Add(voskIOTimeout))
	if err := r.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		return false, E(KindRecognizer, "vosk write", err)
	}
	_ = r.conn.SetReadDeadline(time.Now().Add(voskIOTimeout))
	_, data, err := r.conn.ReadMessage()
	if err != nil {
		return false, E(KindRecognizer, "vosk read", err)
	}
	var reply voskReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return false, E(KindRecognizer, "vosk decode", fmt.Errorf("%w: %q", err, data))
	}
	if reply.Text != nil {
		r.result = *reply.Text
		r.partial = ""
		return true, nil
	}
	r.partial = reply.Partial
	return false, nil
}

func (r *voskRecognizer) Result() string  { return r.result }
func (r *voskRecognizer) Partial() string { return r.partial }

func (r *voskRecognizer) Close() error {
	_ = r.conn.SetWriteDeadline(time.Now().Add(voskIOTimeout))
	_ = r.conn.WriteMessage(websocket.TextMessage, []byte(`{"eof" : 1}`))
	return r.conn.Close()
}
