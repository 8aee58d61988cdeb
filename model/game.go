package model

import "time"

// GameSummary is the card shown in lists and search results.
type GameSummary struct {
	Id          int64     `json:"id"`
	Name        string    `json:"name"`
	CoverUrl    string    `json:"cover_url"`
	Rating      float64   `json:"rating"`
	RatingCount int64     `json:"rating_count"`
	Platforms   []string  `json:"platforms"`
	Genres      []string  `json:"genres"`
	ReleaseDate time.Time `json:"release_date"`
}

// GameDetails is the full game page. Stats carries Playlog's own review
// aggregate and is filled at read time, never cached.
type GameDetails struct {
	GameSummary
	Summary      string           `json:"summary"`
	Storyline    string           `json:"storyline"`
	Screenshots  []string         `json:"screenshots"`
	Videos       []string         `json:"videos"`
	Developers   []string         `json:"developers"`
	SimilarGames []int64          `json:"similar_games"`
	Stats        *GameReviewStats `json:"stats,omitempty"`
}

// DiscoveryFeed is the content of the discovery screen.
type DiscoveryFeed struct {
	Popular          []GameSummary `json:"popular"`
	Upcoming         []GameSummary `json:"upcoming"`
	RecentlyReleased []GameSummary `json:"recently_released"`
	FetchedAt        time.Time     `json:"fetched_at"`
}

// Recommendation is a game predicted to be liked by a user.
type Recommendation struct {
	GameId int64   `json:"game_id"`
	Score  float64 `json:"score"`
}

// Interaction is a single (user, game, rating) observation used for training.
type Interaction struct {
	UserId string
	GameId int64
	Rating float64
}
