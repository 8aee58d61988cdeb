package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

type reviewRequest struct {
	Rating *float64 `json:"rating" binding:"required"`
	Body   string   `json:"body"`
}

type commentRequest struct {
	Body string `json:"body"`
}

func (s *Server) listGameReviews(c *gin.Context) {
	gameId, err := int64Param(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	page, err := pageOf(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	reviews, next, err := s.Reviews.ListByGame(c.Request.Context(), gameId, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondPage(c, reviews, next)
}

func (s *Server) listUserReviews(c *gin.Context) {
	page, err := pageOf(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	reviews, next, err := s.Reviews.ListByUser(c.Request.Context(), c.Param("id"), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondPage(c, reviews, next)
}

func (s *Server) myReview(c *gin.Context) {
	gameId, err := int64Param(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	r, err := s.Reviews.Get(c.Request.Context(), gameId, currentUser(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// putReview creates the caller's review of the game or edits it.
func (s *Server) putReview(c *gin.Context) {
	gameId, err := int64Param(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req := reviewRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errors.Wrap(ErrBadRequest, err.Error()))
		return
	}
	r, stats, err := s.Reviews.Submit(c.Request.Context(), currentUser(c), gameId, *req.Rating, req.Body)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"review": r,
		"stats":  stats,
	})
}

func (s *Server) deleteReview(c *gin.Context) {
	gameId, err := int64Param(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	stats, err := s.Reviews.Delete(c.Request.Context(), currentUser(c), gameId)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (s *Server) listComments(c *gin.Context) {
	gameId, err := int64Param(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	page, err := pageOf(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	comments, next, err := s.Comments.ListComments(c.Request.Context(), gameId, c.Param("userId"), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondPage(c, comments, next)
}

func (s *Server) addComment(c *gin.Context) {
	gameId, err := int64Param(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req := commentRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errors.Wrap(ErrBadRequest, err.Error()))
		return
	}
	comment, err := s.Comments.AddComment(c.Request.Context(), currentUser(c), gameId, c.Param("userId"), req.Body)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (s *Server) deleteComment(c *gin.Context) {
	if err := s.Comments.DeleteComment(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
