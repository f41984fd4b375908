package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type connectedMessage struct {
	Type      string `json:"type"`
	Timeframe string `json:"timeframe"`
	Timestamp int64  `json:"timestamp"`
}

// handleWS upgrades the request and streams publisher messages of one
// timeframe until either side goes away. A client too slow to drain its
// buffer is pruned by the publisher, which ends the stream.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	tf, err := s.timeframe(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := s.logger.With(zap.String("timeframe", tf.String()), zap.String("remote", r.RemoteAddr))
	sub := s.subs.Subscribe(tf, s.opts.Buffer)
	defer sub.Unsubscribe()
	logger.Info("websocket client connected")

	// Reader: detects the peer closing and unblocks the writer.
	go func() {
		defer sub.Unsubscribe()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	hello := connectedMessage{Type: "connected", Timeframe: tf.String(), Timestamp: s.now().UnixMilli()}
	if err := s.write(conn, hello); err != nil {
		return
	}

	for m := range sub.C() {
		if err := s.write(conn, m); err != nil {
			logger.Debug("websocket write failed", zap.Error(err))
			break
		}
	}
	logger.Info("websocket client disconnected")
}

func (s *Server) write(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}
