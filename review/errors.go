package review

import "github.com/pkg/errors"

var (
	ErrInvalidRating       = errors.New("rating must be between 0 and 10")
	ErrEmptyBody           = errors.New("review text must not be empty")
	ErrBodyTooLong         = errors.New("review text is too long")
	ErrReviewQuotaExceeded = errors.New("review quota exceeded")
	ErrReviewNotFound      = errors.New("review not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidGame         = errors.New("invalid game id")

	ErrEmptyComment     = errors.New("comment must not be empty")
	ErrCommentTooLong   = errors.New("comment is too long")
	ErrCommentNotFound  = errors.New("comment not found")
	ErrCommentForbidden = errors.New("only the comment author or the review author can delete a comment")
	ErrCommentBlocked   = errors.New("cannot comment on this review")
)
