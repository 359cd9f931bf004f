package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/cppla/ledger/ledger"
	"github.com/cppla/ledger/middleware"
	"github.com/cppla/ledger/utils"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

// StreamController pushes ledger notices for the caller and their guilds
// over a websocket.
type StreamController struct {
	hub            *utils.Hub
	allowedOrigins map[string]bool
	allowAll       bool
}

// NewStreamController creates a StreamController. Browsers may connect from
// allowedOrigins or the serving host; "*" accepts any origin.
func NewStreamController(hub *utils.Hub, allowedOrigins []string) *StreamController {
	s := &StreamController{hub: hub, allowedOrigins: map[string]bool{}}
	for _, o := range allowedOrigins {
		if o == "*" {
			s.allowAll = true
		}
		s.allowedOrigins[o] = true
	}
	return s
}

// Stream upgrades the connection and forwards notices until either side closes.
func (s *StreamController) Stream(ctx *gin.Context) {
	claims := middleware.ClaimsFrom(ctx)
	if claims == nil {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		utils.Sugar.Warnf("ws upgrade error: %v", err)
		return
	}

	owners := []ledger.Owner{ledger.User(claims.UserID)}
	for _, g := range claims.Guilds {
		owners = append(owners, ledger.Guild(g))
	}
	for _, g := range claims.GuildAdmins {
		owners = append(owners, ledger.Guild(g))
	}

	subCtx, cancel := context.WithCancel(context.Background())
	notices := s.hub.Subscribe(subCtx, 64, utils.ForOwners(owners...))
	utils.Sugar.Infof("stream client connected: user=%s remote=%s", claims.UserID, ctx.Request.RemoteAddr)

	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	writePump(conn, notices, cancel)
	utils.Sugar.Infof("stream client disconnected: user=%s", claims.UserID)
}

func writePump(conn *websocket.Conn, notices <-chan ledger.Notice, cancel context.CancelFunc) {
	ticker := time.NewTicker(streamPingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		conn.Close()
	}()
	for {
		select {
		case n, ok := <-notices:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(n)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *StreamController) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || s.allowAll {
		return true
	}
	if s.allowedOrigins[origin] {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	return parsed.Host == r.Host
}
