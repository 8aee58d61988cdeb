package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/playlog/backend/cache"
	"github.com/playlog/backend/catalog"
	"github.com/playlog/backend/eventbus"
	"github.com/playlog/backend/favorite"
	"github.com/playlog/backend/igdb"
	"github.com/playlog/backend/model"
	"github.com/playlog/backend/moderation"
	"github.com/playlog/backend/notification"
	"github.com/playlog/backend/recommender"
	"github.com/playlog/backend/review"
	"github.com/playlog/backend/server/middlewares"
	"github.com/playlog/backend/social"
	"github.com/playlog/backend/store"
	"github.com/playlog/backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSource struct {
	err error
}

func (f *fakeSource) games(name string, limit int) ([]model.GameSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []model.GameSummary{{Id: 1, Name: name}}, nil
}

func (f *fakeSource) Search(ctx context.Context, term string, limit int) ([]model.GameSummary, error) {
	return f.games(term, limit)
}

func (f *fakeSource) Popular(ctx context.Context, limit int) ([]model.GameSummary, error) {
	return f.games("popular", limit)
}

func (f *fakeSource) Upcoming(ctx context.Context, limit int) ([]model.GameSummary, error) {
	return f.games("upcoming", limit)
}

func (f *fakeSource) RecentlyReleased(ctx context.Context, limit int) ([]model.GameSummary, error) {
	return f.games("recent", limit)
}

func (f *fakeSource) GameDetails(ctx context.Context, id int64) (model.GameDetails, error) {
	if f.err != nil {
		return model.GameDetails{}, f.err
	}
	if id == 404 {
		return model.GameDetails{}, errors.Wrap(igdb.ErrGameMissing, "404")
	}
	return model.GameDetails{GameSummary: model.GameSummary{Id: id, Name: "details"}}, nil
}

func (f *fakeSource) GamesByIds(ctx context.Context, ids []int64) ([]model.GameSummary, error) {
	res := []model.GameSummary{}
	for _, id := range ids {
		res = append(res, model.GameSummary{Id: id})
	}
	return res, nil
}

type fakeSocial struct {
	mu      sync.Mutex
	follows map[string]bool
}

func (f *fakeSocial) Follow(ctx context.Context, followerId string, followeeId string) error {
	if followerId == followeeId {
		return social.ErrSelfFollow
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.follows[followerId+">"+followeeId] = true
	return nil
}

func (f *fakeSocial) Unfollow(ctx context.Context, followerId string, followeeId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.follows, followerId+">"+followeeId)
	return nil
}

func (f *fakeSocial) Block(ctx context.Context, blockerId string, blockedId string) error {
	return social.ErrSelfBlock
}

func (f *fakeSocial) Unblock(ctx context.Context, blockerId string, blockedId string) error {
	return nil
}

func (f *fakeSocial) edges(n int) []model.UserEdge {
	res := []model.UserEdge{}
	for i := n; i > 0; i-- {
		res = append(res, model.UserEdge{Id: "u", Cursor: int64(i)})
	}
	return res
}

func (f *fakeSocial) ListFollowers(ctx context.Context, userId string, page model.Page) ([]model.UserEdge, error) {
	return f.edges(page.Limit), nil
}

func (f *fakeSocial) ListFollowing(ctx context.Context, userId string, page model.Page) ([]model.UserEdge, error) {
	return f.edges(1), nil
}

func (f *fakeSocial) ListBlocked(ctx context.Context, userId string, page model.Page) ([]model.UserEdge, error) {
	return []model.UserEdge{}, nil
}

func (f *fakeSocial) Relationship(ctx context.Context, viewerId string, otherId string) (model.Relationship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return model.Relationship{Following: f.follows[viewerId+">"+otherId]}, nil
}

func (f *fakeSocial) Counts(ctx context.Context, userId string) (int64, int64, error) {
	return 3, 4, nil
}

type fakeNotifications struct{}

func (fakeNotifications) List(ctx context.Context, userId string, opts notification.ListOptions) ([]model.Notification, error) {
	return []model.Notification{{Id: "n1", UserId: userId, Type: model.NotificationTypeNewFollower, Cursor: 9}}, nil
}

func (fakeNotifications) MarkRead(ctx context.Context, userId string, id string) error {
	if id != "n1" {
		return notification.ErrNotificationNotFound
	}
	return nil
}

func (fakeNotifications) MarkAllRead(ctx context.Context, userId string) (int64, error) {
	return 2, nil
}

func (fakeNotifications) UnreadCount(ctx context.Context, userId string) (int64, error) {
	return 5, nil
}

func (fakeNotifications) Delete(ctx context.Context, userId string, id string) error {
	return nil
}

type fakeComments struct{}

func (fakeComments) AddComment(ctx context.Context, authorId string, gameId int64, reviewUserId string, body string) (model.ReviewComment, error) {
	if strings.TrimSpace(body) == "" {
		return model.ReviewComment{}, review.ErrEmptyComment
	}
	return model.ReviewComment{Id: "c1", GameId: gameId, ReviewUserId: reviewUserId, AuthorId: authorId, Body: body}, nil
}

func (fakeComments) ListComments(ctx context.Context, gameId int64, reviewUserId string, page model.Page) ([]model.ReviewComment, int64, error) {
	return []model.ReviewComment{}, 0, nil
}

func (fakeComments) DeleteComment(ctx context.Context, userId string, commentId string) error {
	return review.ErrCommentForbidden
}

type testEnv struct {
	router *gin.Engine
	server *Server
	source *fakeSource
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewMemoryStore()
	kv := utils.NewMemoryKeyValueStore()
	source := &fakeSource{}
	details, err := cache.NewDetailsCache(10, time.Hour, kv)
	require.NoError(t, err)
	pub := &eventbus.FakePublisher{}
	socialGraph := &fakeSocial{follows: map[string]bool{}}

	s := &Server{
		Users: st,
		Reviews: review.NewService(st, moderation.NewWordListModerator([]string{"badword"}), pub, review.Config{
			MaxFreeReviews: 2,
			MaxBodyLength:  100,
		}),
		Comments:        fakeComments{},
		Favorites:       favorite.NewService(st, pub, 1),
		Social:          socialGraph,
		Notifications:   fakeNotifications{},
		Hub:             notification.NewHub(),
		Catalog:         catalog.NewService(source, cache.NewDiscoveryCache(time.Hour, kv), details, st, 5),
		Recommendations: recommender.NewStore(kv, 0),
	}
	return &testEnv{
		router: NewRouter(s, middlewares.ByPassAuth()),
		server: s,
		source: source,
	}
}

func (e *testEnv) do(t *testing.T, method, path, user string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		req.Header.Set(middlewares.SubjectKey, user)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	res := map[string]interface{}{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &res)
	}
	return w, res
}

func (e *testEnv) signUp(t *testing.T, user string) {
	t.Helper()
	w, _ := e.do(t, http.MethodPost, "/api/v1/users", user, gin.H{"name": user})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestPingAndAuth(t *testing.T) {
	e := newTestEnv(t)

	w, res := e.do(t, http.MethodGet, "/api/v1/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", res["message"])

	w, res = e.do(t, http.MethodGet, "/api/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, utils.ErrorTokenAuthFail, res["code"])
}

func TestUserProfile(t *testing.T) {
	e := newTestEnv(t)

	w, _ := e.do(t, http.MethodGet, "/api/v1/me", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = e.do(t, http.MethodPost, "/api/v1/users", "alice", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	e.signUp(t, "alice")
	// signing up twice keeps the first account
	w, res := e.do(t, http.MethodPost, "/api/v1/users", "alice", gin.H{"name": "other"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", res["name"])

	w, res = e.do(t, http.MethodGet, "/api/v1/me", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3.0, res["follower_count"])
	assert.Equal(t, 4.0, res["following_count"])

	e.signUp(t, "bob")
	w, _ = e.do(t, http.MethodPut, "/api/v1/users/bob/follow", "alice", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, res = e.do(t, http.MethodGet, "/api/v1/users/bob", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	rel := res["relationship"].(map[string]interface{})
	assert.Equal(t, true, rel["following"])
}

func TestReviewLifecycle(t *testing.T) {
	e := newTestEnv(t)
	e.signUp(t, "alice")
	e.signUp(t, "bob")

	w, res := e.do(t, http.MethodPut, "/api/v1/games/7/reviews/me", "alice", gin.H{"rating": 8, "body": "great"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 8.0, res["stats"].(map[string]interface{})["average_rating"])

	w, res = e.do(t, http.MethodPut, "/api/v1/games/7/reviews/me", "bob", gin.H{"rating": 5, "body": "meh"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 6.5, res["stats"].(map[string]interface{})["average_rating"])

	w, res = e.do(t, http.MethodGet, "/api/v1/games/7/stats", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.0, res["review_count"])

	w, res = e.do(t, http.MethodGet, "/api/v1/games/7/reviews?limit=1", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, res["items"], 1)
	assert.NotEqual(t, 0.0, res["next_cursor"])

	w, res = e.do(t, http.MethodGet, "/api/v1/users/alice/reviews", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, res["items"], 1)
	assert.Equal(t, 0.0, res["next_cursor"])

	w, res = e.do(t, http.MethodGet, "/api/v1/games/7/reviews/me", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "meh", res["body"])

	w, res = e.do(t, http.MethodDelete, "/api/v1/games/7/reviews/me", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 8.0, res["stats"].(map[string]interface{})["average_rating"])

	w, _ = e.do(t, http.MethodGet, "/api/v1/games/7/reviews/me", "bob", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = e.do(t, http.MethodGet, "/api/v1/games/7", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestReviewErrors(t *testing.T) {
	e := newTestEnv(t)
	e.signUp(t, "alice")

	w, res := e.do(t, http.MethodPut, "/api/v1/games/7/reviews/me", "alice", gin.H{"rating": 11, "body": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, utils.ErrorInvalidArgument, res["code"])

	w, _ = e.do(t, http.MethodPut, "/api/v1/games/7/reviews/me", "alice", gin.H{"body": "no rating"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = e.do(t, http.MethodPut, "/api/v1/games/abc/reviews/me", "alice", gin.H{"rating": 5, "body": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, res = e.do(t, http.MethodPut, "/api/v1/games/7/reviews/me", "alice", gin.H{"rating": 5, "body": "what a badword"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, utils.ErrorContentRejected, res["code"])
	assert.Contains(t, res["msg"], "Please revise it")

	w, _ = e.do(t, http.MethodPut, "/api/v1/games/7/reviews/me", "ghost", gin.H{"rating": 5, "body": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReviewQuota(t *testing.T) {
	e := newTestEnv(t)
	e.signUp(t, "alice")

	for _, game := range []string{"1", "2"} {
		w, _ := e.do(t, http.MethodPut, "/api/v1/games/"+game+"/reviews/me", "alice", gin.H{"rating": 5, "body": "ok"})
		require.Equal(t, http.StatusOK, w.Code)
	}
	w, res := e.do(t, http.MethodPut, "/api/v1/games/3/reviews/me", "alice", gin.H{"rating": 5, "body": "ok"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, utils.ErrorQuotaExceeded, res["code"])

	// edits never count
	w, _ = e.do(t, http.MethodPut, "/api/v1/games/1/reviews/me", "alice", gin.H{"rating": 9, "body": "better"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, res = e.do(t, http.MethodGet, "/api/v1/me", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.0, res["review_count"])
}

func TestFavorites(t *testing.T) {
	e := newTestEnv(t)
	e.signUp(t, "alice")

	w, res := e.do(t, http.MethodPut, "/api/v1/me/favorites/7", "alice", gin.H{"name": "Seven"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Seven", res["game_name"])

	// repeating is idempotent, a new one exceeds the free quota of 1
	w, _ = e.do(t, http.MethodPut, "/api/v1/me/favorites/7", "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, res = e.do(t, http.MethodPut, "/api/v1/me/favorites/8", "alice", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, utils.ErrorQuotaExceeded, res["code"])

	w, res = e.do(t, http.MethodGet, "/api/v1/me/favorites/7", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, res["favorite"])

	w, res = e.do(t, http.MethodGet, "/api/v1/me/favorites", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, res["items"], 1)

	w, _ = e.do(t, http.MethodDelete, "/api/v1/me/favorites/7", "alice", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, _ = e.do(t, http.MethodDelete, "/api/v1/me/favorites/7", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGames(t *testing.T) {
	e := newTestEnv(t)

	w, res := e.do(t, http.MethodGet, "/api/v1/games/discovery", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, res["popular"], 1)

	w, res = e.do(t, http.MethodGet, "/api/v1/games/search?q=zelda", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, res["items"], 1)

	w, _ = e.do(t, http.MethodGet, "/api/v1/games/search?q=%20", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, res = e.do(t, http.MethodGet, "/api/v1/games/12", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "details", res["name"])
	assert.NotNil(t, res["stats"])

	w, _ = e.do(t, http.MethodGet, "/api/v1/games/404", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	e.source.err = errors.Wrap(igdb.ErrUpstream, "status 500")
	w, res = e.do(t, http.MethodGet, "/api/v1/games/13", "alice", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, utils.ErrorUpstreamFailure, res["code"])

	// cached before the upstream broke
	w, _ = e.do(t, http.MethodGet, "/api/v1/games/12", "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = e.do(t, http.MethodGet, "/api/v1/games/discovery", "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSocialRoutes(t *testing.T) {
	e := newTestEnv(t)

	w, res := e.do(t, http.MethodPut, "/api/v1/users/alice/follow", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "You cannot follow yourself.", res["msg"])

	w, _ = e.do(t, http.MethodPut, "/api/v1/users/alice/block", "bob", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, res = e.do(t, http.MethodGet, "/api/v1/users/alice/followers?limit=2", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, res["items"], 2)
	assert.Equal(t, 1.0, res["next_cursor"])

	w, res = e.do(t, http.MethodGet, "/api/v1/users/alice/following?limit=2", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.0, res["next_cursor"])

	w, _ = e.do(t, http.MethodGet, "/api/v1/users/alice/followers?cursor=-1", "bob", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = e.do(t, http.MethodGet, "/api/v1/me/blocked", "bob", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = e.do(t, http.MethodDelete, "/api/v1/users/alice/follow", "bob", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCommentRoutes(t *testing.T) {
	e := newTestEnv(t)

	w, res := e.do(t, http.MethodPost, "/api/v1/games/7/reviews/bob/comments", "alice", gin.H{"body": "nice"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "bob", res["review_user_id"])

	w, _ = e.do(t, http.MethodPost, "/api/v1/games/7/reviews/bob/comments", "alice", gin.H{"body": " "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = e.do(t, http.MethodGet, "/api/v1/games/7/reviews/bob/comments", "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = e.do(t, http.MethodDelete, "/api/v1/comments/c1", "carol", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestNotificationRoutes(t *testing.T) {
	e := newTestEnv(t)

	w, res := e.do(t, http.MethodGet, "/api/v1/me/notifications?unread=true&limit=1", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, res["items"], 1)
	assert.Equal(t, 9.0, res["next_cursor"])

	w, _ = e.do(t, http.MethodGet, "/api/v1/me/notifications?since=not-a-date", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = e.do(t, http.MethodGet, "/api/v1/me/notifications?unread=maybe", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, res = e.do(t, http.MethodGet, "/api/v1/me/notifications/unread_count", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5.0, res["unread"])

	w, _ = e.do(t, http.MethodPost, "/api/v1/me/notifications/n1/read", "alice", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, _ = e.do(t, http.MethodPost, "/api/v1/me/notifications/n2/read", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, res = e.do(t, http.MethodPost, "/api/v1/me/notifications/read_all", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.0, res["updated"])

	w, _ = e.do(t, http.MethodDelete, "/api/v1/me/notifications/n1", "alice", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRecommendations(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	w, res := e.do(t, http.MethodGet, "/api/v1/me/recommendations", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, res["items"])

	require.NoError(t, e.server.Recommendations.Save(ctx, "alice", []model.Recommendation{{GameId: 3, Score: 9.1}, {GameId: 4, Score: 8}}))
	w, res = e.do(t, http.MethodGet, "/api/v1/me/recommendations", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, res["items"], 2)
	assert.Len(t, res["games"], 2)
}

func TestNotificationStream(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/me/notifications/stream"
	header := http.Header{}
	header.Set(middlewares.SubjectKey, "alice")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return e.server.Hub.GetActiveConnectionsCount() == 1
	}, time.Second, 5*time.Millisecond)

	n := notification.NewFollowerNotification("alice", "bob", "Bob")
	n.Id = "n1"
	require.NoError(t, e.server.Hub.PushToUser(n, "alice"))

	got := model.Notification{}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "n1", got.Id)
	assert.Equal(t, model.NotificationTypeNewFollower, got.Type)

	conn.Close()
	require.Eventually(t, func() bool {
		return e.server.Hub.GetActiveConnectionsCount() == 0
	}, time.Second, 5*time.Millisecond)
}
