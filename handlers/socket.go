package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/giftshift/giftshift-go/ws"
)

type SocketHandler interface {
	Connect(w http.ResponseWriter, r *http.Request)

	ServeHttp(*http.ServeMux)
}

func NewSocketHandler(hub *ws.Hub, log *zap.Logger) SocketHandler {
	return &socketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

type socketHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func (s *socketHandler) ServeHttp(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.Connect)
}

func (s *socketHandler) Connect(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	go s.hub.Serve(conn)
}
