package model

import (
	"time"
)

// Bounds of a review rating, shared by reviews and the recommender.
const (
	MinReviewRating = 0
	MaxReviewRating = 10
)

/*

Review is a user's review of a single game. A user holds at most one review
per game, enforced by the composite primary key.

GameId: IGDB game id
UserId: author
Rating: score in [0, 10], one decimal
Body: review text
CreatedAt / UpdatedAt: write times, edits only touch UpdatedAt
Cursor: monotonic id used for pagination

*/
type Review struct {
	GameId    int64     `json:"game_id" gorm:"primaryKey;autoIncrement:false"`
	UserId    string    `json:"user_id" gorm:"primaryKey"`
	Rating    float64   `json:"rating"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Cursor    int64     `json:"cursor" gorm:"autoIncrement;index"`
}

/*

GameReviewStats is the aggregate kept next to the reviews of a game. It is
only written inside the same transaction as the review it reflects, so
AverageRating == RatingTotal / ReviewCount always holds for the stored set.

*/
type GameReviewStats struct {
	GameId        int64     `json:"game_id" gorm:"primaryKey;autoIncrement:false"`
	ReviewCount   int64     `json:"review_count"`
	RatingTotal   float64   `json:"rating_total"`
	AverageRating float64   `json:"average_rating"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Recalculate derives the average from count and total.
func (s *GameReviewStats) Recalculate() {
	if s.ReviewCount <= 0 {
		s.ReviewCount = 0
		s.RatingTotal = 0
		s.AverageRating = 0
		return
	}
	s.AverageRating = s.RatingTotal / float64(s.ReviewCount)
}

/*

UserQuota is the per-user counter document checked by review and favorite
writes. Counters move in the same transaction as the rows they count.

*/
type UserQuota struct {
	UserId        string `json:"user_id" gorm:"primaryKey"`
	ReviewCount   int64  `json:"review_count"`
	FavoriteCount int64  `json:"favorite_count"`
}

/*

ReviewComment is a comment left on someone's review.

ReviewUserId: author of the review being commented on
AuthorId: author of the comment

*/
type ReviewComment struct {
	Id           string    `json:"id" gorm:"primaryKey"`
	GameId       int64     `json:"game_id" gorm:"index:idx_comment_review"`
	ReviewUserId string    `json:"review_user_id" gorm:"index:idx_comment_review"`
	AuthorId     string    `json:"author_id"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"created_at"`
	Cursor       int64     `json:"cursor" gorm:"autoIncrement"`
}
