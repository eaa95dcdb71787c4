package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/msalah0e/graphlens/internal/client"
	"github.com/msalah0e/graphlens/internal/dispatch"
	"github.com/msalah0e/graphlens/internal/session"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
	zoomIn         = 1.1
	zoomOut        = 0.9
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 64 * 1024,
}

// Query is one selected query in a select message.
type Query struct {
	Name   string         `json:"name"`
	Method string         `json:"method,omitempty"`
	Params map[string]any `json:"params,omitempty"`
	TopK   int            `json:"top_k,omitempty"`
}

// Inbound is a message from the browser.
type Inbound struct {
	Type    string              `json:"type"`
	Kind    session.PointerKind `json:"kind,omitempty"`
	X       float64             `json:"x,omitempty"`
	Y       float64             `json:"y,omitempty"`
	Delta   float64             `json:"delta,omitempty"`
	DX      float64             `json:"dx,omitempty"`
	DY      float64             `json:"dy,omitempty"`
	Width   float64             `json:"width,omitempty"`
	Height  float64             `json:"height,omitempty"`
	Queries []Query             `json:"queries,omitempty"`

	Label     string `json:"label,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	NodesOnly bool   `json:"nodes_only,omitempty"`
}

// wsConn is the part of a websocket connection the frame writer uses.
type wsConn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Outbound is a message to the browser.
type Outbound struct {
	Type    string         `json:"type"`
	Session string         `json:"session,omitempty"`
	Frame   *session.Frame `json:"frame,omitempty"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	opts := append([]session.Option{
		session.WithLogger(s.logger),
		session.WithMetrics(s.metrics),
	}, s.cfg.Sessions...)
	sess := session.New(s.src, opts...)
	defer s.track(sess)()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := writeMessage(conn, Outbound{Type: "hello", Session: sess.ID}); err != nil {
		return
	}
	s.logger.Info("session opened", "session", sess.ID, "remote", r.RemoteAddr)

	frames, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = sess.Run(ctx)
	}()
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeFrames(ctx, conn, frames, cancel)
	}()

	s.readMessages(ctx, conn, sess)
	cancel()
	<-writerDone
	<-loopDone
	s.logger.Info("session closed", "session", sess.ID)
}

// writeFrames is the connection's only writer. A failed write closes the
// connection so the blocked reader returns.
func (s *Server) writeFrames(ctx context.Context, conn wsConn, frames <-chan session.Frame, cancel func()) {
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case f := <-frames:
			if err := writeMessage(conn, Outbound{Type: "frame", Frame: &f}); err != nil {
				s.logger.Debug("frame write failed", "error", err)
				cancel()
				_ = conn.Close()
				return
			}
		}
	}
}

func (s *Server) readMessages(ctx context.Context, conn *websocket.Conn, sess *session.Session) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read failed", "error", err)
			}
			return
		}
		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("malformed message", "error", err)
			continue
		}
		s.apply(ctx, sess, msg)
	}
}

// apply routes one browser message to the session. Fetches run in the
// background; their outcome shows up in later frames.
func (s *Server) apply(ctx context.Context, sess *session.Session, msg Inbound) {
	switch msg.Type {
	case "pointer":
		sess.Pointer(session.PointerEvent{Kind: msg.Kind, X: msg.X, Y: msg.Y})
	case "wheel":
		factor := zoomIn
		if msg.Delta > 0 {
			factor = zoomOut
		}
		sess.Zoom(factor, msg.X, msg.Y)
	case "pan":
		sess.Pan(msg.DX, msg.DY)
	case "resize":
		sess.Resize(msg.Width, msg.Height)
	case "select":
		sels := selections(msg.Queries)
		if len(sels) > 0 {
			go func() { _, _ = sess.Select(ctx, sels) }()
		}
	case "load_sample":
		req := dispatch.SampleRequest{Label: msg.Label, Limit: msg.Limit, NodesOnly: msg.NodesOnly}
		go func() { _, _ = sess.LoadSample(ctx, req) }()
	case "expand_all":
		go func() { _, _ = sess.ExpandAll(ctx) }()
	case "clear":
		sess.Clear()
	default:
		s.logger.Debug("unknown message", "type", msg.Type)
	}
}

func selections(qs []Query) []dispatch.Selection {
	sels := make([]dispatch.Selection, 0, len(qs))
	for _, q := range qs {
		if q.Name == "" {
			continue
		}
		method := q.Method
		if method == "" {
			method = client.MethodFor(q.Name)
		}
		sels = append(sels, dispatch.Selection{Name: q.Name, Method: method, Params: q.Params, TopK: q.TopK})
	}
	return sels
}

func writeMessage(conn wsConn, msg Outbound) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
