package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/playlog/backend/model"
)

type reviewKey struct {
	gameId int64
	userId string
}

type favoriteKey struct {
	userId string
	gameId int64
}

type memoryData struct {
	users     map[string]model.User
	quotas    map[string]model.UserQuota
	stats     map[int64]model.GameReviewStats
	reviews   map[reviewKey]model.Review
	favorites map[favoriteKey]model.Favorite
	cursor    int64
}

func (d *memoryData) clone() *memoryData {
	c := &memoryData{
		users:     make(map[string]model.User, len(d.users)),
		quotas:    make(map[string]model.UserQuota, len(d.quotas)),
		stats:     make(map[int64]model.GameReviewStats, len(d.stats)),
		reviews:   make(map[reviewKey]model.Review, len(d.reviews)),
		favorites: make(map[favoriteKey]model.Favorite, len(d.favorites)),
		cursor:    d.cursor,
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.quotas {
		c.quotas[k] = v
	}
	for k, v := range d.stats {
		c.stats[k] = v
	}
	for k, v := range d.reviews {
		c.reviews[k] = v
	}
	for k, v := range d.favorites {
		c.favorites[k] = v
	}
	return c
}

func (d *memoryData) nextCursor() int64 {
	d.cursor++
	return d.cursor
}

// MemoryStore is a Store kept in process memory, used by tests and by local
// runs without Postgres. Transactions are serialized and work on a copy that
// replaces the live data only when fn succeeds.
type MemoryStore struct {
	mu   sync.RWMutex
	data *memoryData
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: &memoryData{
			users:     map[string]model.User{},
			quotas:    map[string]model.UserQuota{},
			stats:     map[int64]model.GameReviewStats{},
			reviews:   map[reviewKey]model.Review{},
			favorites: map[favoriteKey]model.Favorite{},
		},
		now: time.Now,
	}
}

func (s *MemoryStore) RunInTransaction(ctx context.Context, fn TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.data.clone()
	if err := fn(&memoryTx{data: staged, now: s.now}); err != nil {
		return err
	}
	s.data = staged
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, userId string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.data.users[userId]; ok {
		return &u, nil
	}
	return nil, nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, u *model.User) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.data.users[u.Id]; ok {
		return &existing, nil
	}
	stored := *u
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	s.data.users[u.Id] = stored
	return &stored, nil
}

func (s *MemoryStore) GetStats(ctx context.Context, gameId int64) (model.GameReviewStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.data.stats[gameId]; ok {
		return st, nil
	}
	return model.GameReviewStats{GameId: gameId}, nil
}

func (s *MemoryStore) GetQuota(ctx context.Context, userId string) (model.UserQuota, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if q, ok := s.data.quotas[userId]; ok {
		return q, nil
	}
	return model.UserQuota{UserId: userId}, nil
}

func (s *MemoryStore) GetReview(ctx context.Context, gameId int64, userId string) (*model.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.data.reviews[reviewKey{gameId, userId}]; ok {
		return &r, nil
	}
	return nil, nil
}

func (s *MemoryStore) ListGameReviews(ctx context.Context, gameId int64, page model.Page) ([]model.Review, error) {
	return s.listReviews(page, func(r model.Review) bool { return r.GameId == gameId }), nil
}

func (s *MemoryStore) ListUserReviews(ctx context.Context, userId string, page model.Page) ([]model.Review, error) {
	return s.listReviews(page, func(r model.Review) bool { return r.UserId == userId }), nil
}

func (s *MemoryStore) listReviews(page model.Page, match func(model.Review) bool) []model.Review {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page = page.Normalize()
	res := []model.Review{}
	for _, r := range s.data.reviews {
		if match(r) && (page.Cursor == 0 || r.Cursor < page.Cursor) {
			res = append(res, r)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Cursor > res[j].Cursor })
	if len(res) > page.Limit {
		res = res[:page.Limit]
	}
	return res
}

func (s *MemoryStore) ListReviewedGameIds(ctx context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[int64]bool{}
	for k := range s.data.reviews {
		seen[k.gameId] = true
	}
	for id := range s.data.stats {
		seen[id] = true
	}
	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemoryStore) ListInteractions(ctx context.Context) ([]model.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reviews := make([]model.Review, 0, len(s.data.reviews))
	for _, r := range s.data.reviews {
		reviews = append(reviews, r)
	}
	sort.Slice(reviews, func(i, j int) bool { return reviews[i].Cursor < reviews[j].Cursor })
	res := make([]model.Interaction, 0, len(reviews))
	for _, r := range reviews {
		res = append(res, model.Interaction{UserId: r.UserId, GameId: r.GameId, Rating: r.Rating})
	}
	return res, nil
}

func (s *MemoryStore) GetFavorite(ctx context.Context, userId string, gameId int64) (*model.Favorite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f, ok := s.data.favorites[favoriteKey{userId, gameId}]; ok {
		return &f, nil
	}
	return nil, nil
}

func (s *MemoryStore) ListFavorites(ctx context.Context, userId string, page model.Page) ([]model.Favorite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page = page.Normalize()
	res := []model.Favorite{}
	for _, f := range s.data.favorites {
		if f.UserId == userId && (page.Cursor == 0 || f.Cursor < page.Cursor) {
			res = append(res, f)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Cursor > res[j].Cursor })
	if len(res) > page.Limit {
		res = res[:page.Limit]
	}
	return res, nil
}

type memoryTx struct {
	data *memoryData
	now  func() time.Time
}

func (t *memoryTx) User(userId string) (*model.User, error) {
	if u, ok := t.data.users[userId]; ok {
		return &u, nil
	}
	return nil, nil
}

func (t *memoryTx) Quota(userId string) (model.UserQuota, error) {
	if q, ok := t.data.quotas[userId]; ok {
		return q, nil
	}
	return model.UserQuota{UserId: userId}, nil
}

func (t *memoryTx) SaveQuota(q model.UserQuota) error {
	t.data.quotas[q.UserId] = q
	return nil
}

func (t *memoryTx) Stats(gameId int64) (model.GameReviewStats, error) {
	if s, ok := t.data.stats[gameId]; ok {
		return s, nil
	}
	return model.GameReviewStats{GameId: gameId}, nil
}

func (t *memoryTx) SaveStats(s model.GameReviewStats) error {
	t.data.stats[s.GameId] = s
	return nil
}

func (t *memoryTx) Review(gameId int64, userId string) (*model.Review, error) {
	if r, ok := t.data.reviews[reviewKey{gameId, userId}]; ok {
		return &r, nil
	}
	return nil, nil
}

func (t *memoryTx) CreateReview(r *model.Review) error {
	r.Cursor = t.data.nextCursor()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = t.now()
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	t.data.reviews[reviewKey{r.GameId, r.UserId}] = *r
	return nil
}

func (t *memoryTx) UpdateReview(r *model.Review) error {
	key := reviewKey{r.GameId, r.UserId}
	existing, ok := t.data.reviews[key]
	if !ok {
		return nil
	}
	existing.Rating = r.Rating
	existing.Body = r.Body
	existing.UpdatedAt = r.UpdatedAt
	t.data.reviews[key] = existing
	return nil
}

func (t *memoryTx) DeleteReview(gameId int64, userId string) error {
	delete(t.data.reviews, reviewKey{gameId, userId})
	return nil
}

func (t *memoryTx) GameReviews(gameId int64) ([]model.Review, error) {
	res := []model.Review{}
	for _, r := range t.data.reviews {
		if r.GameId == gameId {
			res = append(res, r)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Cursor < res[j].Cursor })
	return res, nil
}

func (t *memoryTx) Favorite(userId string, gameId int64) (*model.Favorite, error) {
	if f, ok := t.data.favorites[favoriteKey{userId, gameId}]; ok {
		return &f, nil
	}
	return nil, nil
}

func (t *memoryTx) CreateFavorite(f *model.Favorite) error {
	f.Cursor = t.data.nextCursor()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = t.now()
	}
	t.data.favorites[favoriteKey{f.UserId, f.GameId}] = *f
	return nil
}

func (t *memoryTx) DeleteFavorite(userId string, gameId int64) error {
	delete(t.data.favorites, favoriteKey{userId, gameId})
	return nil
}
