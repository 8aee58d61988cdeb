package igdb

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/playlog/backend/model"
	Logger "github.com/playlog/backend/utils/log"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseUrl = "https://api.igdb.com/v4"

	gamesEndpoint = "games"

	// release window considered "recently released"
	recentWindow = 90 * 24 * time.Hour
	// games with fewer votes are too noisy to call popular
	minPopularVotes = 20
)

var (
	ErrUpstream    = errors.New("igdb request failed")
	ErrGameMissing = errors.New("game not found on igdb")
)

type Config struct {
	BaseUrl           string
	ClientId          string
	AccessToken       string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Client talks to the IGDB v4 API. All requests are POSTs with an
// APIcalypse body and share one rate limiter.
type Client struct {
	baseUrl string
	header  http.Header
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

func NewClient(config Config) *Client {
	baseUrl := config.BaseUrl
	if baseUrl == "" {
		baseUrl = DefaultBaseUrl
	}
	header := http.Header{}
	if config.ClientId != "" {
		header.Set("Client-ID", config.ClientId)
	}
	if config.AccessToken != "" {
		header.Set("Authorization", "Bearer "+config.AccessToken)
	}
	header.Set("Accept", "application/json")
	header.Set("Content-Type", "text/plain")

	limit := rate.Inf
	burst := 1
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
		burst = int(config.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &Client{
		baseUrl: strings.TrimRight(baseUrl, "/"),
		header:  header,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		now:     time.Now,
	}
}

func (c *Client) Post(ctx context.Context, endpoint string, query *Query, dst interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "igdb rate limiter")
	}
	uri := c.baseUrl + "/" + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, strings.NewReader(query.String()))
	if err != nil {
		return errors.Wrap(err, "build igdb request")
	}
	req.Header = c.header.Clone()

	res, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(ErrUpstream, "POST %s: %s", endpoint, err)
	}
	defer res.Body.Close()

	if IsNon200HttpResponse(res) {
		MaybeLogNon200HttpError(res)
		return errors.Wrapf(ErrUpstream, "POST %s: status %d", endpoint, res.StatusCode)
	}
	if err := json.NewDecoder(res.Body).Decode(dst); err != nil {
		return errors.Wrapf(ErrUpstream, "decode %s response: %s", endpoint, err)
	}
	return nil
}

func (c *Client) games(ctx context.Context, query *Query) ([]game, error) {
	var res []game
	if err := c.Post(ctx, gamesEndpoint, query, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) summaries(ctx context.Context, query *Query) ([]model.GameSummary, error) {
	games, err := c.games(ctx, query)
	if err != nil {
		return nil, err
	}
	return toSummaries(games)
}

func (c *Client) Search(ctx context.Context, term string, limit int) ([]model.GameSummary, error) {
	q := NewQuery(summaryFields...).
		Search(term).
		Where("version_parent = null").
		Limit(limit)
	return c.summaries(ctx, q)
}

func (c *Client) Popular(ctx context.Context, limit int) ([]model.GameSummary, error) {
	q := NewQuery(summaryFields...).
		Where("total_rating_count >= %d", minPopularVotes).
		Where("cover != null").
		Sort("total_rating_count", true).
		Limit(limit)
	return c.summaries(ctx, q)
}

func (c *Client) Upcoming(ctx context.Context, limit int) ([]model.GameSummary, error) {
	q := NewQuery(summaryFields...).
		Where("first_release_date > %d", c.now().Unix()).
		Where("cover != null").
		Sort("first_release_date", false).
		Limit(limit)
	return c.summaries(ctx, q)
}

func (c *Client) RecentlyReleased(ctx context.Context, limit int) ([]model.GameSummary, error) {
	now := c.now()
	q := NewQuery(summaryFields...).
		Where("first_release_date <= %d", now.Unix()).
		Where("first_release_date > %d", now.Add(-recentWindow).Unix()).
		Where("cover != null").
		Sort("first_release_date", true).
		Limit(limit)
	return c.summaries(ctx, q)
}

func (c *Client) GameDetails(ctx context.Context, id int64) (model.GameDetails, error) {
	q := NewQuery(detailFields...).Where("id = %d", id).Limit(1)
	games, err := c.games(ctx, q)
	if err != nil {
		return model.GameDetails{}, err
	}
	if len(games) == 0 {
		return model.GameDetails{}, errors.Wrapf(ErrGameMissing, "id %d", id)
	}
	return toDetails(games[0])
}

// GamesByIds keeps the order of ids and silently skips unknown ones.
func (c *Client) GamesByIds(ctx context.Context, ids []int64) ([]model.GameSummary, error) {
	if len(ids) == 0 {
		return []model.GameSummary{}, nil
	}
	q := NewQuery(summaryFields...).Where("id = %s", idList(ids)).Limit(len(ids))
	summaries, err := c.summaries(ctx, q)
	if err != nil {
		return nil, err
	}
	byId := make(map[int64]model.GameSummary, len(summaries))
	for _, s := range summaries {
		byId[s.Id] = s
	}
	res := make([]model.GameSummary, 0, len(ids))
	for _, id := range ids {
		if s, ok := byId[id]; ok {
			res = append(res, s)
		}
	}
	return res, nil
}

// Log http response if the error code is not 2XX
func MaybeLogNon200HttpError(res *http.Response) {
	if IsNon200HttpResponse(res) {
		Logger.Log.Errorf("non-200 igdb http code: %d", res.StatusCode)
		LogHttpResponseBody(res)
	}
}

func IsNon200HttpResponse(res *http.Response) bool {
	return res.StatusCode >= 300
}

func LogHttpResponseBody(res *http.Response) {
	body, err := ioutil.ReadAll(res.Body)
	if err == nil {
		Logger.Log.Errorln("response body is: ", string(body))
	}
}
