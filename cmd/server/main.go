package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/gin-gonic/gin"
	"github.com/playlog/backend/app_config"
	"github.com/playlog/backend/cache"
	"github.com/playlog/backend/catalog"
	"github.com/playlog/backend/eventbus"
	"github.com/playlog/backend/eventbus/modules"
	"github.com/playlog/backend/favorite"
	"github.com/playlog/backend/igdb"
	"github.com/playlog/backend/moderation"
	"github.com/playlog/backend/notification"
	"github.com/playlog/backend/recommender"
	"github.com/playlog/backend/review"
	"github.com/playlog/backend/server"
	"github.com/playlog/backend/server/middlewares"
	"github.com/playlog/backend/social"
	"github.com/playlog/backend/store"
	. "github.com/playlog/backend/utils"
	"github.com/playlog/backend/utils/dotenv"
	"github.com/playlog/backend/utils/flag"
	. "github.com/playlog/backend/utils/log"
	"golang.org/x/time/rate"
	gintrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gin-gonic/gin"
)

const (
	defaultStatsdAddr = "127.0.0.1:8125"
	shutdownTimeout   = 10 * time.Second
)

func cleanup() {
	CloseProfiler()
	CloseTracer()
	Log.Info("api server shutdown")
}

func NewDogStatsdClient() *statsd.Client {
	addr := defaultStatsdAddr
	if host := os.Getenv("DD_AGENT_HOST"); host != "" {
		addr = host + ":8125"
	}
	client, err := statsd.New(addr)
	if err != nil {
		panic(err)
	}
	return client
}

// NewKeyValueStore prefers Redis and falls back to process memory when Redis
// is not configured, caches then only live as long as the process.
func NewKeyValueStore(ctx context.Context) KeyValueStore {
	if os.Getenv("REDIS_HOST") == "" {
		Log.Warn("REDIS_HOST not set, caches and recommendations are kept in memory")
		return NewMemoryKeyValueStore()
	}
	redisStore, err := GetRedisStore(ctx)
	if err != nil {
		Log.Fatalln("cannot connect to redis: ", err)
	}
	return redisStore
}

func NewModerator(timeout time.Duration) moderation.Moderator {
	if endpoint := os.Getenv("MODERATION_ENDPOINT"); endpoint != "" {
		return moderation.NewHttpModerator(endpoint, os.Getenv("MODERATION_API_KEY"), timeout)
	}
	if words := os.Getenv("MODERATION_WORDS"); words != "" {
		return moderation.NewWordListModerator(strings.Split(words, ","))
	}
	return moderation.NoopModerator{}
}

func NewAuthMiddleware(ctx context.Context) gin.HandlerFunc {
	if *flag.ByPassAuth {
		Log.Warn("authentication is bypassed, user id is read from the sub header")
		return middlewares.ByPassAuth()
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		return middlewares.JWT(middlewares.NewHMACAuthenticator(secret, os.Getenv("JWT_ISSUER")))
	}
	cognito, err := middlewares.NewCognitoAuthenticator(ctx)
	if err != nil {
		Log.Fatalln("cannot create cognito authenticator: ", err)
	}
	return middlewares.JWT(cognito)
}

func NewCaches(ctx context.Context, config app_config.PlaylogAppConfig, kv KeyValueStore) (*cache.DiscoveryCache, *cache.DetailsCache) {
	discovery := cache.NewDiscoveryCache(config.DiscoveryCacheTTL(), kv)
	details, err := cache.NewDetailsCache(config.DETAILS_CACHE_CAPACITY, config.DetailsCacheTTL(), kv)
	if err != nil {
		Log.Fatalln("cannot create details cache: ", err)
	}
	// A cold cache is fine, rehydration failures are not fatal.
	if err := discovery.Rehydrate(ctx); err != nil {
		Log.WithError(err).Warn("discovery cache not rehydrated")
	}
	if err := details.Rehydrate(ctx); err != nil {
		Log.WithError(err).Warn("details cache not rehydrated")
	}
	return discovery, details
}

func main() {
	flag.Parse()
	if err := dotenv.LoadDotEnvs(); err != nil {
		panic(err)
	}
	InitLogger()

	InitTracer(*flag.ServiceName)
	InitProfiler(*flag.ServiceName)
	defer cleanup()

	config, err := app_config.ParsePlaylogAppConfig(*flag.AppConfigPath)
	if err != nil {
		Log.Fatalln("invalid app config: ", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := GetDBConnection()
	if err != nil {
		Log.Fatalln("cannot connect to DB: ", err)
	}
	if err := DatabaseSetupAndMigration(db); err != nil {
		Log.Fatalln("cannot migrate DB: ", err)
	}

	kv := NewKeyValueStore(ctx)
	discovery, details := NewCaches(ctx, config, kv)

	bus := eventbus.NewEventBus()
	publisher := eventbus.NewBusPublisher(bus)
	moderator := NewModerator(config.IgdbTimeout())

	users := store.NewGormStore(db, config.TRANSACTION_MAX_RETRY)
	socialService := social.NewService(db, publisher)
	hub := notification.NewHub()
	notifications := notification.NewService(db, hub)
	comments := review.NewCommentService(db, users, moderator, socialService, publisher, config.MAX_COMMENT_BODY_LENGTH)
	reviews := review.NewService(users, moderator, publisher, review.Config{
		MaxFreeReviews: config.MAX_FREE_REVIEWS,
		MaxBodyLength:  config.MAX_REVIEW_BODY_LENGTH,
	})
	reviews.Comments = comments

	igdbClient := igdb.NewClient(igdb.Config{
		BaseUrl:           os.Getenv("IGDB_BASE_URL"),
		ClientId:          os.Getenv("IGDB_CLIENT_ID"),
		AccessToken:       os.Getenv("IGDB_ACCESS_TOKEN"),
		RequestsPerSecond: config.IGDB_REQUESTS_PER_SECOND,
		Timeout:           config.IgdbTimeout(),
	})
	catalogService := catalog.NewService(igdbClient, discovery, details, users, config.DISCOVERY_LIST_SIZE)

	// Initialize all engine modules here.
	engine := eventbus.NewEngine([]eventbus.Module{
		// Notifier turns follow and comment events into stored notifications.
		modules.NewNotifier(modules.NotifierConfig{Name: "notifier"}, notifications, bus),
		// Reporter reports domain events to datadog for monitoring purpose.
		modules.NewReporter(modules.ReporterConfig{Name: "reporter"}, NewDogStatsdClient(), bus),
		// Refresher keeps the discovery feed warm.
		modules.NewRefresher(modules.RefresherConfig{Name: "refresher", Interval: config.DiscoveryCacheTTL() * 9 / 10}, catalogService),
	}, ctx, cancel, bus)
	go engine.Run()

	var searchLimiter *rate.Limiter
	if config.SEARCH_REQUESTS_PER_SECOND > 0 {
		searchLimiter = rate.NewLimiter(rate.Limit(config.SEARCH_REQUESTS_PER_SECOND), int(config.SEARCH_REQUESTS_PER_SECOND)+1)
	}

	router := server.NewRouter(&server.Server{
		Users:           users,
		Reviews:         reviews,
		Comments:        comments,
		Favorites:       favorite.NewService(users, publisher, config.MAX_FREE_FAVORITES),
		Social:          socialService,
		Notifications:   notifications,
		Hub:             hub,
		Catalog:         catalogService,
		Recommendations: recommender.NewStore(kv, recommender.DefaultTTL),
		SearchLimiter:   searchLimiter,
	}, NewAuthMiddleware(ctx), gintrace.Middleware(*flag.ServiceName))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{Addr: ":" + port, Handler: router}
	go func() {
		Log.Infof("api server starts up on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			Log.Fatalln("api server stopped: ", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		Log.WithError(err).Error("api server did not shut down cleanly")
	}
	engine.Shutdown()
}
