package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/playlog/backend/catalog"
	"github.com/playlog/backend/favorite"
	"github.com/playlog/backend/model"
	"github.com/playlog/backend/notification"
	"github.com/playlog/backend/recommender"
	"github.com/playlog/backend/review"
	"github.com/playlog/backend/server/middlewares"
	"github.com/playlog/backend/store"
	"golang.org/x/time/rate"
)

var ErrUserNotFound = errors.New("user not found")

// SocialGraph is implemented by social.Service.
type SocialGraph interface {
	Follow(ctx context.Context, followerId string, followeeId string) error
	Unfollow(ctx context.Context, followerId string, followeeId string) error
	Block(ctx context.Context, blockerId string, blockedId string) error
	Unblock(ctx context.Context, blockerId string, blockedId string) error
	ListFollowers(ctx context.Context, userId string, page model.Page) ([]model.UserEdge, error)
	ListFollowing(ctx context.Context, userId string, page model.Page) ([]model.UserEdge, error)
	ListBlocked(ctx context.Context, userId string, page model.Page) ([]model.UserEdge, error)
	Relationship(ctx context.Context, viewerId string, otherId string) (model.Relationship, error)
	Counts(ctx context.Context, userId string) (int64, int64, error)
}

// Notifications is implemented by notification.Service.
type Notifications interface {
	List(ctx context.Context, userId string, opts notification.ListOptions) ([]model.Notification, error)
	MarkRead(ctx context.Context, userId string, id string) error
	MarkAllRead(ctx context.Context, userId string) (int64, error)
	UnreadCount(ctx context.Context, userId string) (int64, error)
	Delete(ctx context.Context, userId string, id string) error
}

// Comments is implemented by review.CommentService.
type Comments interface {
	AddComment(ctx context.Context, authorId string, gameId int64, reviewUserId string, body string) (model.ReviewComment, error)
	ListComments(ctx context.Context, gameId int64, reviewUserId string, page model.Page) ([]model.ReviewComment, int64, error)
	DeleteComment(ctx context.Context, userId string, commentId string) error
}

// Server holds everything the HTTP handlers need.
type Server struct {
	Users           store.Store
	Reviews         *review.Service
	Comments        Comments
	Favorites       *favorite.Service
	Social          SocialGraph
	Notifications   Notifications
	Hub             *notification.Hub
	Catalog         *catalog.Service
	Recommendations *recommender.Store

	// SearchLimiter throttles game search across all users, it shares the
	// upstream quota with the rest of the catalog.
	SearchLimiter *rate.Limiter
}

func corsConfig() cors.Config {
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	return config
}

// NewRouter wires every route under /api/v1. auth authenticates the
// request and stores the user id under middlewares.SubjectKey, extra
// middlewares such as tracing run first.
func NewRouter(s *Server, auth gin.HandlerFunc, extra ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(extra...)
	router.Use(middlewares.Recover(), middlewares.AccessLog(), cors.New(corsConfig()))

	api := router.Group("/api/v1")
	api.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	authed := api.Group("", auth)

	authed.POST("/users", s.createUser)
	authed.GET("/me", s.me)
	authed.GET("/users/:id", s.getUser)

	search := []gin.HandlerFunc{s.searchGames}
	if s.SearchLimiter != nil {
		search = append([]gin.HandlerFunc{middlewares.WithLimiter(s.SearchLimiter)}, search...)
	}
	authed.GET("/games/discovery", s.discovery)
	authed.GET("/games/search", search...)
	authed.GET("/games/:id", s.gameDetails)
	authed.GET("/games/:id/stats", s.gameStats)

	authed.GET("/games/:id/reviews", s.listGameReviews)
	authed.GET("/games/:id/reviews/me", s.myReview)
	authed.PUT("/games/:id/reviews/me", s.putReview)
	authed.DELETE("/games/:id/reviews/me", s.deleteReview)
	authed.GET("/users/:id/reviews", s.listUserReviews)

	authed.GET("/games/:id/reviews/:userId/comments", s.listComments)
	authed.POST("/games/:id/reviews/:userId/comments", s.addComment)
	authed.DELETE("/comments/:id", s.deleteComment)

	authed.GET("/me/favorites", s.listFavorites)
	authed.GET("/me/favorites/:gameId", s.isFavorite)
	authed.PUT("/me/favorites/:gameId", s.addFavorite)
	authed.DELETE("/me/favorites/:gameId", s.removeFavorite)

	authed.PUT("/users/:id/follow", s.follow)
	authed.DELETE("/users/:id/follow", s.unfollow)
	authed.PUT("/users/:id/block", s.block)
	authed.DELETE("/users/:id/block", s.unblock)
	authed.GET("/users/:id/followers", s.listFollowers)
	authed.GET("/users/:id/following", s.listFollowing)
	authed.GET("/me/blocked", s.listBlocked)

	authed.GET("/me/notifications", s.listNotifications)
	authed.GET("/me/notifications/unread_count", s.unreadCount)
	authed.POST("/me/notifications/read_all", s.markAllRead)
	authed.POST("/me/notifications/:id/read", s.markRead)
	authed.DELETE("/me/notifications/:id", s.deleteNotification)
	authed.GET("/me/notifications/stream", s.streamNotifications)

	authed.GET("/me/recommendations", s.recommendations)

	return router
}

func currentUser(c *gin.Context) string {
	return c.GetString(middlewares.SubjectKey)
}

func int64Param(c *gin.Context, name string) (int64, error) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		return 0, errors.Wrapf(ErrBadRequest, "%s must be a positive integer", name)
	}
	return v, nil
}

// pageOf reads the cursor and limit query parameters.
func pageOf(c *gin.Context) (model.Page, error) {
	page := model.Page{}
	if v := c.Query("cursor"); v != "" {
		cursor, err := strconv.ParseInt(v, 10, 64)
		if err != nil || cursor < 0 {
			return page, errors.Wrap(ErrBadRequest, "invalid cursor")
		}
		page.Cursor = cursor
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return page, errors.Wrap(ErrBadRequest, "invalid limit")
		}
		page.Limit = limit
	}
	return page.Normalize(), nil
}

func respondPage(c *gin.Context, items interface{}, next int64) {
	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"next_cursor": next,
	})
}
