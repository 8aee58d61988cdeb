package recommender

import (
	"math"
	"math/rand"
	"sort"

	"github.com/playlog/backend/model"
	Logger "github.com/playlog/backend/utils/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

type Config struct {
	Factors        int
	Epochs         int
	LearningRate   float64
	Regularization float64
	InitStdDev     float64
	MinRating      float64
	MaxRating      float64
	Seed           int64
}

func DefaultConfig() Config {
	return Config{
		Factors:        100,
		Epochs:         20,
		LearningRate:   0.005,
		Regularization: 0.02,
		InitStdDev:     0.1,
		MinRating:      model.MinReviewRating,
		MaxRating:      model.MaxReviewRating,
		Seed:           1,
	}
}

// Model is a biased matrix factorisation: the predicted rating of user u for
// item i is mean + bu[u] + bi[i] + dot(P[u], Q[i]).
type Model struct {
	data   *Dataset
	config Config

	bu []float64
	bi []float64
	// one row of latent factors per user / item
	p *mat.Dense
	q *mat.Dense
}

// Train fits a model to ds with stochastic gradient descent.
func Train(ds *Dataset, config Config) *Model {
	m := &Model{
		data:   ds,
		config: config,
		bu:     make([]float64, ds.NumUsers()),
		bi:     make([]float64, ds.NumItems()),
	}
	if ds.NumRatings() == 0 {
		return m
	}

	if config.Factors > 0 {
		rnd := rand.New(rand.NewSource(config.Seed))
		m.p = randomMatrix(rnd, ds.NumUsers(), config.Factors, config.InitStdDev)
		m.q = randomMatrix(rnd, ds.NumItems(), config.Factors, config.InitStdDev)
	}

	lr, reg := config.LearningRate, config.Regularization
	prev := make([]float64, config.Factors)
	for epoch := 0; epoch < config.Epochs; epoch++ {
		for _, r := range ds.ratings {
			err := r.value - m.estimate(r.user, r.item)

			m.bu[r.user] += lr * (err - reg*m.bu[r.user])
			m.bi[r.item] += lr * (err - reg*m.bi[r.item])

			if m.p == nil {
				continue
			}
			pu := m.p.RawRowView(r.user)
			qi := m.q.RawRowView(r.item)
			copy(prev, pu)
			floats.Scale(1-lr*reg, pu)
			floats.AddScaled(pu, lr*err, qi)
			floats.Scale(1-lr*reg, qi)
			floats.AddScaled(qi, lr*err, prev)
		}
	}
	Logger.Log.Infof("trained recommender on %d ratings of %d users and %d games, training rmse %.3f",
		ds.NumRatings(), ds.NumUsers(), ds.NumItems(), m.TrainingRMSE())
	return m
}

func randomMatrix(rnd *rand.Rand, rows, cols int, std float64) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = rnd.NormFloat64() * std
	}
	return mat.NewDense(rows, cols, data)
}

func (m *Model) estimate(u, i int) float64 {
	est := m.data.mean + m.bu[u] + m.bi[i]
	if m.p != nil {
		est += floats.Dot(m.p.RawRowView(u), m.q.RawRowView(i))
	}
	return est
}

func (m *Model) clip(v float64) float64 {
	return math.Max(m.config.MinRating, math.Min(m.config.MaxRating, v))
}

// Predict returns the estimated rating, falling back to the biases that are
// known when the user or the game was never seen.
func (m *Model) Predict(userId string, gameId int64) float64 {
	u, knownUser := m.data.userIndex[userId]
	i, knownItem := m.data.itemIndex[gameId]
	est := m.data.mean
	switch {
	case knownUser && knownItem:
		est = m.estimate(u, i)
	case knownUser:
		est += m.bu[u]
	case knownItem:
		est += m.bi[i]
	}
	return m.clip(est)
}

func (m *Model) TrainingRMSE() float64 {
	if m.data.NumRatings() == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range m.data.ratings {
		d := r.value - m.clip(m.estimate(r.user, r.item))
		sum += d * d
	}
	return math.Sqrt(sum / float64(m.data.NumRatings()))
}

// TopN returns up to n games the user has not rated, best predicted first.
// Users unknown to the model get no recommendation.
func (m *Model) TopN(userId string, n int) []model.Recommendation {
	u, ok := m.data.userIndex[userId]
	if !ok || n <= 0 {
		return []model.Recommendation{}
	}
	candidates := make([]model.Recommendation, 0, m.data.NumItems())
	for i, game := range m.data.items {
		if m.data.rated[u][i] {
			continue
		}
		candidates = append(candidates, model.Recommendation{GameId: game, Score: m.clip(m.estimate(u, i))})
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].Score > candidates[b].Score
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

func (m *Model) RecommendAll(n int) map[string][]model.Recommendation {
	res := make(map[string][]model.Recommendation, m.data.NumUsers())
	for _, user := range m.data.users {
		res[user] = m.TopN(user, n)
	}
	return res
}
