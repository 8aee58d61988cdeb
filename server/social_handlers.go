package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/playlog/backend/model"
)

func (s *Server) edgeAction(c *gin.Context, action func(ctx context.Context, self string, other string) error) {
	if err := action(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) follow(c *gin.Context) {
	s.edgeAction(c, s.Social.Follow)
}

func (s *Server) unfollow(c *gin.Context) {
	s.edgeAction(c, s.Social.Unfollow)
}

func (s *Server) block(c *gin.Context) {
	s.edgeAction(c, s.Social.Block)
}

func (s *Server) unblock(c *gin.Context) {
	s.edgeAction(c, s.Social.Unblock)
}

func (s *Server) edgeList(c *gin.Context, userId string, list func(ctx context.Context, userId string, page model.Page) ([]model.UserEdge, error)) {
	page, err := pageOf(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	edges, err := list(c.Request.Context(), userId, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var next int64
	if len(edges) > 0 {
		next = page.NextCursor(edges[len(edges)-1].Cursor, len(edges))
	}
	respondPage(c, edges, next)
}

func (s *Server) listFollowers(c *gin.Context) {
	s.edgeList(c, c.Param("id"), s.Social.ListFollowers)
}

func (s *Server) listFollowing(c *gin.Context) {
	s.edgeList(c, c.Param("id"), s.Social.ListFollowing)
}

func (s *Server) listBlocked(c *gin.Context) {
	s.edgeList(c, currentUser(c), s.Social.ListBlocked)
}
