package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/playlog/backend/model"
	Logger "github.com/playlog/backend/utils/log"
)

func (s *Server) discovery(c *gin.Context) {
	feed, err := s.Catalog.DiscoveryFeed(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

func (s *Server) searchGames(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		var err error
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			AbortWithError(c, errors.Wrap(ErrBadRequest, "invalid limit"))
			return
		}
	}
	games, err := s.Catalog.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": games})
}

func (s *Server) gameDetails(c *gin.Context) {
	gameId, err := int64Param(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	details, err := s.Catalog.GameDetails(c.Request.Context(), gameId)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (s *Server) gameStats(c *gin.Context) {
	gameId, err := int64Param(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	stats, err := s.Reviews.Stats(c.Request.Context(), gameId)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// recommendations returns the stored recommendations of the caller together
// with the matching game cards when the catalog can provide them.
func (s *Server) recommendations(c *gin.Context) {
	ctx := c.Request.Context()
	recs, err := s.Recommendations.Get(ctx, currentUser(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	games := []model.GameSummary{}
	if len(recs) > 0 {
		ids := make([]int64, 0, len(recs))
		for _, r := range recs {
			ids = append(ids, r.GameId)
		}
		if found, err := s.Catalog.GamesByIds(ctx, ids); err != nil {
			Logger.Log.WithError(err).Warn("fail to load recommended games")
		} else {
			games = found
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"items": recs,
		"games": games,
	})
}
