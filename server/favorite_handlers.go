package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/playlog/backend/model"
)

// favoriteRequest carries the card fields shown in the favorites list so that
// listing them needs no upstream call.
type favoriteRequest struct {
	Name     string `json:"name" binding:"max=200"`
	CoverUrl string `json:"cover_url" binding:"max=500"`
}

func (s *Server) listFavorites(c *gin.Context) {
	page, err := pageOf(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	favorites, next, err := s.Favorites.List(c.Request.Context(), currentUser(c), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondPage(c, favorites, next)
}

func (s *Server) isFavorite(c *gin.Context) {
	gameId, err := int64Param(c, "gameId")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	ok, err := s.Favorites.IsFavorite(c.Request.Context(), currentUser(c), gameId)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"favorite": ok})
}

func (s *Server) addFavorite(c *gin.Context) {
	gameId, err := int64Param(c, "gameId")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req := favoriteRequest{}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, errors.Wrap(ErrBadRequest, err.Error()))
		return
	}
	f, err := s.Favorites.Add(c.Request.Context(), currentUser(c), model.GameRef{
		Id:       gameId,
		Name:     req.Name,
		CoverUrl: req.CoverUrl,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (s *Server) removeFavorite(c *gin.Context) {
	gameId, err := int64Param(c, "gameId")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.Favorites.Remove(c.Request.Context(), currentUser(c), gameId); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
