package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/playlog/backend/notification"
	Logger "github.com/playlog/backend/utils/log"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the token is checked by the auth middleware, any origin may connect
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) listNotifications(c *gin.Context) {
	page, err := pageOf(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	opts := notification.ListOptions{Page: page}
	if v := c.Query("unread"); v != "" {
		if opts.UnreadOnly, err = strconv.ParseBool(v); err != nil {
			AbortWithError(c, errors.Wrap(ErrBadRequest, "invalid unread flag"))
			return
		}
	}
	if v := c.Query("since"); v != "" {
		if opts.Since, err = notification.ParseSince(v); err != nil {
			AbortWithError(c, err)
			return
		}
	}
	items, err := s.Notifications.List(c.Request.Context(), currentUser(c), opts)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var next int64
	if len(items) > 0 {
		next = page.NextCursor(items[len(items)-1].Cursor, len(items))
	}
	respondPage(c, items, next)
}

func (s *Server) unreadCount(c *gin.Context) {
	n, err := s.Notifications.UnreadCount(c.Request.Context(), currentUser(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": n})
}

func (s *Server) markRead(c *gin.Context) {
	if err := s.Notifications.MarkRead(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) markAllRead(c *gin.Context) {
	n, err := s.Notifications.MarkAllRead(c.Request.Context(), currentUser(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (s *Server) deleteNotification(c *gin.Context) {
	if err := s.Notifications.Delete(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// streamNotifications upgrades to a websocket and pushes every notification
// created for the caller while the socket is open.
func (s *Server) streamNotifications(c *gin.Context) {
	userId := currentUser(c)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		Logger.Log.WithError(err).Warn("fail to upgrade notification stream")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	ch, chId := s.Hub.AddNewConnection(ctx, userId)
	Logger.Log.Infof("user %s opened notification stream %s", userId, chId)

	// the client never sends anything, reading only detects the close
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-ch:
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(n); err != nil {
				Logger.Log.WithError(err).Infof("notification stream %s closed", chId)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
