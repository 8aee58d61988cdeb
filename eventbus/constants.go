package eventbus

const (
	// A user started following another user, payload UserFollowedEvent.
	TOPIC_USER_FOLLOWED = "topic.user_followed"
	// A comment was left on a review, payload ReviewCommentedEvent.
	TOPIC_REVIEW_COMMENTED = "topic.review_commented"
	// A review was created, edited or deleted, payload ReviewWrittenEvent.
	TOPIC_REVIEW_WRITTEN = "topic.review_written"
	// A favorite was added or removed, payload FavoriteChangedEvent.
	TOPIC_FAVORITE_CHANGED = "topic.favorite_changed"

	// Statsd metric names.
	DDOG_REVIEW_COUNTER   = "playlog.review.written"
	DDOG_FAVORITE_COUNTER = "playlog.favorite.changed"
	DDOG_FOLLOW_COUNTER   = "playlog.social.followed"
	DDOG_COMMENT_COUNTER  = "playlog.review.commented"
)
