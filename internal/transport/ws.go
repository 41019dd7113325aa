package transport

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"firestige.xyz/mediatx/internal/config"
)

func init() {
	Register(config.ProtoWS, dialWS)
}

// SessionHeader carries the session id on ws handshakes and grpc metadata.
const SessionHeader = "X-Mediatx-Session"

const wsCloseWait = time.Second

// wsWriter sends one binary message per frame.
type wsWriter struct {
	conn    *websocket.Conn
	aborted bool // a write was cut short; the close handshake is skipped
}

// wsURL accepts a full ws:// or wss:// URL in Path, otherwise Path is the
// request path on the remote endpoint.
func wsURL(opts Options) string {
	if strings.HasPrefix(opts.Path, "ws://") || strings.HasPrefix(opts.Path, "wss://") {
		return opts.Path
	}
	u := url.URL{Scheme: "ws", Host: opts.Remote.HostPort(), Path: opts.Path}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}

func dialWS(ctx context.Context, opts Options) (Writer, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	headers := http.Header{}
	if opts.SessionID != "" {
		headers.Set(SessionHeader, opts.SessionID)
	}
	conn, resp, err := dialer.DialContext(ctx, wsURL(opts), headers)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &wsWriter{conn: conn}, nil
}

// WriteFrame sends one frame. A done ctx closes the network connection under
// the websocket, which fails a blocked write.
func (w *wsWriter) WriteFrame(ctx context.Context, _ uint32, frame []byte) error {
	stop := context.AfterFunc(ctx, func() { _ = w.conn.NetConn().Close() })
	err := w.conn.WriteMessage(websocket.BinaryMessage, frame)
	if !stop() {
		w.aborted = true
	}
	return err
}

func (w *wsWriter) Close() error {
	if w.aborted {
		_ = w.conn.Close()
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	werr := w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsCloseWait))
	if errors.Is(werr, websocket.ErrCloseSent) {
		werr = nil
	}
	return errors.Join(werr, w.conn.Close())
}
