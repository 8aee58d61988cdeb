package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/playlog/backend/model"
)

type createUserRequest struct {
	Name      string `json:"name" binding:"required,max=50"`
	AvatarUrl string `json:"avatar_url" binding:"omitempty,url,max=500"`
}

// createUser registers the caller, or returns the existing account.
func (s *Server) createUser(c *gin.Context) {
	req := createUserRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errors.Wrap(ErrBadRequest, err.Error()))
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		AbortWithError(c, errors.Wrap(ErrBadRequest, "empty name"))
		return
	}
	user, err := s.Users.CreateUser(c.Request.Context(), &model.User{
		Id:        currentUser(c),
		Name:      name,
		AvatarUrl: req.AvatarUrl,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) profile(c *gin.Context, userId string) (model.UserProfile, error) {
	ctx := c.Request.Context()
	user, err := s.Users.GetUser(ctx, userId)
	if err != nil {
		return model.UserProfile{}, err
	}
	if user == nil {
		return model.UserProfile{}, errors.Wrapf(ErrUserNotFound, "user %s", userId)
	}
	quota, err := s.Users.GetQuota(ctx, userId)
	if err != nil {
		return model.UserProfile{}, err
	}
	followers, following, err := s.Social.Counts(ctx, userId)
	if err != nil {
		return model.UserProfile{}, err
	}
	return model.UserProfile{
		User:           *user,
		FollowerCount:  followers,
		FollowingCount: following,
		ReviewCount:    quota.ReviewCount,
		FavoriteCount:  quota.FavoriteCount,
	}, nil
}

func (s *Server) me(c *gin.Context) {
	p, err := s.profile(c, currentUser(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) getUser(c *gin.Context) {
	userId := c.Param("id")
	p, err := s.profile(c, userId)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	rel, err := s.Social.Relationship(c.Request.Context(), currentUser(c), userId)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"profile":      p,
		"relationship": rel,
	})
}
