package recommender

import (
	"encoding/csv"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/playlog/backend/model"
	Logger "github.com/playlog/backend/utils/log"
)

var ErrMissingColumn = errors.New("interactions csv misses a column")

type rating struct {
	user  int
	item  int
	value float64
}

// Dataset indexes interactions by dense user and item ids.
type Dataset struct {
	users     []string
	items     []int64
	userIndex map[string]int
	itemIndex map[int64]int
	ratings   []rating
	// rated[user] holds the items the user rated
	rated []map[int]bool
	mean  float64
}

// NewDataset builds a dataset, a repeated (user, game) pair keeps its last
// rating.
func NewDataset(interactions []model.Interaction) *Dataset {
	latest := map[string]map[int64]float64{}
	for _, in := range interactions {
		if latest[in.UserId] == nil {
			latest[in.UserId] = map[int64]float64{}
		}
		latest[in.UserId][in.GameId] = in.Rating
	}

	ds := &Dataset{userIndex: map[string]int{}, itemIndex: map[int64]int{}}
	for user := range latest {
		ds.users = append(ds.users, user)
	}
	sort.Strings(ds.users)
	itemSet := map[int64]bool{}
	for _, games := range latest {
		for game := range games {
			itemSet[game] = true
		}
	}
	for game := range itemSet {
		ds.items = append(ds.items, game)
	}
	sort.Slice(ds.items, func(i, j int) bool { return ds.items[i] < ds.items[j] })

	for i, u := range ds.users {
		ds.userIndex[u] = i
	}
	for i, g := range ds.items {
		ds.itemIndex[g] = i
	}

	ds.rated = make([]map[int]bool, len(ds.users))
	total := 0.0
	for u, user := range ds.users {
		ds.rated[u] = map[int]bool{}
		games := make([]int64, 0, len(latest[user]))
		for g := range latest[user] {
			games = append(games, g)
		}
		sort.Slice(games, func(i, j int) bool { return games[i] < games[j] })
		for _, g := range games {
			i := ds.itemIndex[g]
			v := latest[user][g]
			ds.ratings = append(ds.ratings, rating{user: u, item: i, value: v})
			ds.rated[u][i] = true
			total += v
		}
	}
	if len(ds.ratings) > 0 {
		ds.mean = total / float64(len(ds.ratings))
	}
	return ds
}

func (d *Dataset) NumUsers() int {
	return len(d.users)
}

func (d *Dataset) NumItems() int {
	return len(d.items)
}

func (d *Dataset) NumRatings() int {
	return len(d.ratings)
}

func (d *Dataset) Users() []string {
	return append([]string{}, d.users...)
}

// LoadCSV reads user_id, game_id, rating rows. Header names are trimmed,
// rows whose game id or rating is not numeric are dropped.
func LoadCSV(r io.Reader) ([]model.Interaction, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read csv header")
	}
	columns := map[string]int{}
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}
	var idx [3]int
	for i, name := range []string{"user_id", "game_id", "rating"} {
		c, ok := columns[name]
		if !ok {
			return nil, errors.Wrap(ErrMissingColumn, name)
		}
		idx[i] = c
	}

	res := []model.Interaction{}
	dropped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read csv row")
		}
		in, ok := parseRecord(record, idx)
		if !ok {
			dropped++
			continue
		}
		res = append(res, in)
	}
	if dropped > 0 {
		Logger.Log.Infof("dropped %d malformed interaction rows", dropped)
	}
	return res, nil
}

func parseRecord(record []string, idx [3]int) (model.Interaction, bool) {
	for _, i := range idx {
		if i >= len(record) {
			return model.Interaction{}, false
		}
	}
	user := strings.TrimSpace(record[idx[0]])
	game, err := strconv.ParseInt(strings.TrimSpace(record[idx[1]]), 10, 64)
	if err != nil || user == "" {
		return model.Interaction{}, false
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(record[idx[2]]), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return model.Interaction{}, false
	}
	return model.Interaction{UserId: user, GameId: game, Rating: value}, true
}
