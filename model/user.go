package model

import (
	"time"

	"gorm.io/gorm"
)

/*

User is a data model for a Playlog account

Id: primary key, the subject of the user's auth token
CreatedAt: time when entity is created
DeletedAt: time when entity is deleted

Name: display name
AvatarUrl: profile picture
IsPremium: plan tier, premium users are not bound by review or favorite quotas

*/
type User struct {
	Id        string         `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `json:"-"`
	Name      string         `json:"name"`
	AvatarUrl string         `json:"avatar_url"`
	IsPremium bool           `json:"is_premium"`
}

// UserProfile is the public view of a user together with the social counts
// shown on the profile page.
type UserProfile struct {
	User           User  `json:"user"`
	FollowerCount  int64 `json:"follower_count"`
	FollowingCount int64 `json:"following_count"`
	ReviewCount    int64 `json:"review_count"`
	FavoriteCount  int64 `json:"favorite_count"`
}
