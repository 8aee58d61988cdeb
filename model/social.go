package model

import "time"

/*

Follow is a directed edge, FollowerId follows FolloweeId.

*/
type Follow struct {
	FollowerId string    `json:"follower_id" gorm:"primaryKey"`
	FolloweeId string    `json:"followee_id" gorm:"primaryKey;index"`
	CreatedAt  time.Time `json:"created_at"`
	Cursor     int64     `json:"cursor" gorm:"autoIncrement;index"`
}

/*

Block is a directed edge, BlockerId blocked BlockedId. A block in either
direction prevents following and commenting between the two users.

*/
type Block struct {
	BlockerId string    `json:"blocker_id" gorm:"primaryKey"`
	BlockedId string    `json:"blocked_id" gorm:"primaryKey;index"`
	CreatedAt time.Time `json:"created_at"`
	Cursor    int64     `json:"cursor" gorm:"autoIncrement;index"`
}

// Relationship describes the edges between the viewer and another user.
type Relationship struct {
	Following  bool `json:"following"`
	FollowedBy bool `json:"followed_by"`
	Blocking   bool `json:"blocking"`
	BlockedBy  bool `json:"blocked_by"`
}

// UserEdge is a user listed through a follow or block edge. Cursor belongs to
// the edge, so pages follow the order edges were created in.
type UserEdge struct {
	Id        string    `json:"id"`
	Name      string    `json:"name"`
	AvatarUrl string    `json:"avatar_url"`
	IsPremium bool      `json:"is_premium"`
	Since     time.Time `json:"since"`
	Cursor    int64     `json:"cursor"`
}
