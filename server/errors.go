package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/playlog/backend/catalog"
	"github.com/playlog/backend/favorite"
	"github.com/playlog/backend/igdb"
	"github.com/playlog/backend/moderation"
	"github.com/playlog/backend/notification"
	"github.com/playlog/backend/review"
	"github.com/playlog/backend/social"
	"github.com/playlog/backend/utils"
	Logger "github.com/playlog/backend/utils/log"
)

var ErrBadRequest = errors.New("bad request")

// userError is what a client gets to see about a failed request.
type userError struct {
	status  int
	code    string
	message string
}

var knownErrors = []struct {
	err error
	userError
}{
	{review.ErrInvalidRating, userError{http.StatusBadRequest, utils.ErrorInvalidArgument, "Ratings go from 0 to 10."}},
	{review.ErrEmptyBody, userError{http.StatusBadRequest, utils.ErrorInvalidArgument, "Your review needs some text."}},
	{review.ErrBodyTooLong, userError{http.StatusBadRequest, utils.ErrorInvalidArgument, "Your review is too long. Please shorten it."}},
	{review.ErrReviewQuotaExceeded, userError{http.StatusForbidden, utils.ErrorQuotaExceeded, "You have reached the review limit of the free plan. Upgrade to premium to keep reviewing."}},
	{review.ErrReviewNotFound, userError{http.StatusNotFound, utils.ErrorNotFound, "This review does not exist."}},
	{review.ErrUserNotFound, userError{http.StatusNotFound, utils.ErrorNotFound, "This user does not exist."}},
	{review.ErrInvalidGame, userError{http.StatusBadRequest, utils.ErrorInvalidArgument, "This game does not exist."}},
	{review.ErrEmptyComment, userError{http.StatusBadRequest, utils.ErrorInvalidArgument, "Your comment needs some text."}},
	{review.ErrCommentTooLong, userError{http.StatusBadRequest, utils.ErrorInvalidArgument, "Your comment is too long. Please shorten it."}},
	{review.ErrCommentNotFound, userError{http.StatusNotFound, utils.ErrorNotFound, "This comment does not exist."}},
	{review.ErrCommentForbidden, userError{http.StatusForbidden, utils.ErrorForbidden, "You can only delete your own comments or comments on your reviews."}},
	{review.ErrCommentBlocked, userError{http.StatusForbidden, utils.ErrorForbidden, "You cannot comment on this review."}},
	{favorite.ErrFavoriteQuotaExceeded, userError{http.StatusForbidden, utils.ErrorQuotaExceeded, "You have reached the favorites limit of the free plan. Upgrade to premium to add more."}},
	{favorite.ErrFavoriteNotFound, userError{http.StatusNotFound, utils.ErrorNotFound, "This game is not in your favorites."}},
	{favorite.ErrInvalidGame, userError{http.StatusBadRequest, utils.ErrorInvalidArgument, "This game does not exist."}},
	{favorite.ErrUserNotFound, userError{http.StatusNotFound, utils.ErrorNotFound, "This user does not exist."}},
	{social.ErrSelfFollow, userError{http.StatusBadRequest, utils.ErrorInvalidArgument, "You cannot follow yourself."}},
	{social.ErrSelfBlock, userError{http.StatusBadRequest, utils.ErrorInvalidArgument, "You cannot block yourself."}},
	{social.ErrBlocked, userError{http.StatusForbidden, utils.ErrorForbidden, "You cannot follow this user."}},
	{social.ErrUserNotFound, userError{http.StatusNotFound, utils.ErrorNotFound, "This user does not exist."}},
	{notification.ErrNotificationNotFound, userError{http.StatusNotFound, utils.ErrorNotFound, "This notification does not exist."}},
	{notification.ErrInvalidSince, userError{http.StatusBadRequest, utils.ErrorInvalidArgument, "The since parameter is not a valid time."}},
	{moderation.ErrContentRejected, userError{http.StatusUnprocessableEntity, utils.ErrorContentRejected, "Your text was flagged by our community guidelines. Please revise it and try again."}},
	{catalog.ErrEmptyQuery, userError{http.StatusBadRequest, utils.ErrorInvalidArgument, "Type something to search for."}},
	{catalog.ErrInvalidGame, userError{http.StatusBadRequest, utils.ErrorInvalidArgument, "This game does not exist."}},
	{igdb.ErrGameMissing, userError{http.StatusNotFound, utils.ErrorNotFound, "This game does not exist."}},
	{igdb.ErrUpstream, userError{http.StatusBadGateway, utils.ErrorUpstreamFailure, "Game data is unavailable right now. Please try again later."}},
	{ErrUserNotFound, userError{http.StatusNotFound, utils.ErrorNotFound, "This user does not exist."}},
	{ErrBadRequest, userError{http.StatusBadRequest, utils.ErrorInvalidArgument, "The request is malformed."}},
}

var internalError = userError{http.StatusInternalServerError, utils.ErrorInternal, "Something went wrong on our side. Please try again."}

// toUserError maps err to its client facing form. Unknown errors become a
// generic message.
func toUserError(err error) userError {
	for _, known := range knownErrors {
		if errors.Is(err, known.err) {
			return known.userError
		}
	}
	return internalError
}

// AbortWithError writes the error response of err and logs unexpected ones.
func AbortWithError(c *gin.Context, err error) {
	ue := toUserError(err)
	if ue.status >= http.StatusInternalServerError {
		Logger.Log.WithError(err).Errorf("%s %s failed", c.Request.Method, c.Request.URL.Path)
	}
	c.AbortWithStatusJSON(ue.status, gin.H{
		"code": ue.code,
		"msg":  ue.message,
	})
}
