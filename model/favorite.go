package model

import "time"

/*

Favorite is a "many-to-many" relation between a user and a game the user
marked as favorite.

UserId: user id
GameId: IGDB game id
GameName / CoverUrl: snapshot of the game, so that listing favorites does not
need an upstream call

*/
type Favorite struct {
	UserId    string    `json:"user_id" gorm:"primaryKey"`
	GameId    int64     `json:"game_id" gorm:"primaryKey;autoIncrement:false"`
	GameName  string    `json:"game_name"`
	CoverUrl  string    `json:"cover_url"`
	CreatedAt time.Time `json:"created_at"`
	Cursor    int64     `json:"cursor" gorm:"autoIncrement;index"`
}

// GameRef is the minimal game description a client sends when favoriting.
type GameRef struct {
	Id       int64  `json:"id"`
	Name     string `json:"name"`
	CoverUrl string `json:"cover_url"`
}
