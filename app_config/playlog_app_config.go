package app_config

import (
	"io/ioutil"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// This is the app config for the Playlog API server and its batch jobs. Every
// field has a default, a yaml file only needs to list what it overrides.
type PlaylogAppConfig struct {
	// Maximum number of reviews a free-tier user can hold. Edits don't count.
	MAX_FREE_REVIEWS int64 `yaml:"MAX_FREE_REVIEWS"`
	// Maximum number of favorites a free-tier user can hold.
	MAX_FREE_FAVORITES int64 `yaml:"MAX_FREE_FAVORITES"`
	// Review body length cap, in characters.
	MAX_REVIEW_BODY_LENGTH int `yaml:"MAX_REVIEW_BODY_LENGTH"`
	// Comment body length cap, in characters.
	MAX_COMMENT_BODY_LENGTH int `yaml:"MAX_COMMENT_BODY_LENGTH"`

	// Discovery feed is dropped from cache after this many seconds.
	DISCOVERY_CACHE_TTL_SECOND int64 `yaml:"DISCOVERY_CACHE_TTL_SECOND"`
	// Game details are dropped from cache after this many seconds.
	DETAILS_CACHE_TTL_SECOND int64 `yaml:"DETAILS_CACHE_TTL_SECOND"`
	// Number of game details kept, the least recently written are evicted.
	DETAILS_CACHE_CAPACITY int `yaml:"DETAILS_CACHE_CAPACITY"`
	// Size of each discovery list.
	DISCOVERY_LIST_SIZE int `yaml:"DISCOVERY_LIST_SIZE"`

	// Requests per second allowed towards IGDB.
	IGDB_REQUESTS_PER_SECOND float64 `yaml:"IGDB_REQUESTS_PER_SECOND"`
	// Timeout of a single IGDB request.
	IGDB_TIMEOUT_SECOND int64 `yaml:"IGDB_TIMEOUT_SECOND"`
	// Requests per second game search accepts, shared by all users.
	SEARCH_REQUESTS_PER_SECOND float64 `yaml:"SEARCH_REQUESTS_PER_SECOND"`

	// How many times a conflicting transaction is run again before giving up.
	TRANSACTION_MAX_RETRY int `yaml:"TRANSACTION_MAX_RETRY"`

	// Number of recommendations stored per user.
	RECOMMENDATIONS_PER_USER int `yaml:"RECOMMENDATIONS_PER_USER"`
	// Matrix factorisation hyper parameters.
	RECOMMENDER_FACTORS        int     `yaml:"RECOMMENDER_FACTORS"`
	RECOMMENDER_EPOCHS         int     `yaml:"RECOMMENDER_EPOCHS"`
	RECOMMENDER_LEARNING_RATE  float64 `yaml:"RECOMMENDER_LEARNING_RATE"`
	RECOMMENDER_REGULARIZATION float64 `yaml:"RECOMMENDER_REGULARIZATION"`
}

func DefaultPlaylogAppConfig() PlaylogAppConfig {
	return PlaylogAppConfig{
		MAX_FREE_REVIEWS:           20,
		MAX_FREE_FAVORITES:         10,
		MAX_REVIEW_BODY_LENGTH:     5000,
		MAX_COMMENT_BODY_LENGTH:    1000,
		DISCOVERY_CACHE_TTL_SECOND: 60 * 60,
		DETAILS_CACHE_TTL_SECOND:   24 * 60 * 60,
		DETAILS_CACHE_CAPACITY:     50,
		DISCOVERY_LIST_SIZE:        20,
		IGDB_REQUESTS_PER_SECOND:   4,
		IGDB_TIMEOUT_SECOND:        10,
		SEARCH_REQUESTS_PER_SECOND: 2,
		TRANSACTION_MAX_RETRY:      5,
		RECOMMENDATIONS_PER_USER:   10,
		RECOMMENDER_FACTORS:        100,
		RECOMMENDER_EPOCHS:         20,
		RECOMMENDER_LEARNING_RATE:  0.005,
		RECOMMENDER_REGULARIZATION: 0.02,
	}
}

// ParsePlaylogAppConfig reads the yaml file at path on top of the defaults. A
// missing file yields the defaults.
func ParsePlaylogAppConfig(path string) (PlaylogAppConfig, error) {
	c := DefaultPlaylogAppConfig()
	yamlFile, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return c, errors.Wrapf(err, "read app config %s", path)
	}
	if err = yaml.Unmarshal(yamlFile, &c); err != nil {
		return c, errors.Wrapf(err, "unmarshal app config %s", path)
	}
	return c, c.Validate()
}

func (c PlaylogAppConfig) Validate() error {
	switch {
	case c.MAX_FREE_REVIEWS < 0, c.MAX_FREE_FAVORITES < 0:
		return errors.New("quotas must not be negative")
	case c.DETAILS_CACHE_CAPACITY <= 0:
		return errors.New("DETAILS_CACHE_CAPACITY must be positive")
	case c.DISCOVERY_CACHE_TTL_SECOND <= 0, c.DETAILS_CACHE_TTL_SECOND <= 0:
		return errors.New("cache TTLs must be positive")
	case c.IGDB_REQUESTS_PER_SECOND <= 0:
		return errors.New("IGDB_REQUESTS_PER_SECOND must be positive")
	case c.TRANSACTION_MAX_RETRY < 0:
		return errors.New("TRANSACTION_MAX_RETRY must not be negative")
	}
	return nil
}

func (c PlaylogAppConfig) DiscoveryCacheTTL() time.Duration {
	return time.Duration(c.DISCOVERY_CACHE_TTL_SECOND) * time.Second
}

func (c PlaylogAppConfig) DetailsCacheTTL() time.Duration {
	return time.Duration(c.DETAILS_CACHE_TTL_SECOND) * time.Second
}

func (c PlaylogAppConfig) IgdbTimeout() time.Duration {
	return time.Duration(c.IGDB_TIMEOUT_SECOND) * time.Second
}
