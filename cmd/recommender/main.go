package main

import (
	"context"
	"encoding/json"
	"flag"
	"io/ioutil"
	"os"

	"github.com/playlog/backend/app_config"
	"github.com/playlog/backend/model"
	"github.com/playlog/backend/recommender"
	"github.com/playlog/backend/store"
	. "github.com/playlog/backend/utils"
	"github.com/playlog/backend/utils/dotenv"
	sharedflag "github.com/playlog/backend/utils/flag"
	. "github.com/playlog/backend/utils/log"
)

var (
	CsvPath    = flag.String("csv", "", "train from a user_id,game_id,rating csv instead of the review table")
	OutputPath = flag.String("output", "", "also write recommendations to this json file")
)

func loadInteractions(ctx context.Context, config app_config.PlaylogAppConfig) ([]model.Interaction, error) {
	if *CsvPath != "" {
		f, err := os.Open(*CsvPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return recommender.LoadCSV(f)
	}

	db, err := GetDBConnection()
	if err != nil {
		return nil, err
	}
	return recommender.LoadInteractions(ctx, store.NewGormStore(db, config.TRANSACTION_MAX_RETRY))
}

func newKeyValueStore(ctx context.Context) KeyValueStore {
	if os.Getenv("REDIS_HOST") == "" {
		Log.Warn("REDIS_HOST not set, recommendations are not persisted")
		return NewMemoryKeyValueStore()
	}
	redisStore, err := GetRedisStore(ctx)
	if err != nil {
		Log.Fatalln("cannot connect to redis: ", err)
	}
	return redisStore
}

func main() {
	sharedflag.Parse()
	if err := dotenv.LoadDotEnvs(); err != nil {
		panic(err)
	}
	InitLogger()

	config, err := app_config.ParsePlaylogAppConfig(*sharedflag.AppConfigPath)
	if err != nil {
		Log.Fatalln("invalid app config: ", err)
	}
	ctx := context.Background()

	interactions, err := loadInteractions(ctx, config)
	if err != nil {
		Log.Fatalln("cannot load interactions: ", err)
	}

	modelConfig := recommender.DefaultConfig()
	modelConfig.Factors = config.RECOMMENDER_FACTORS
	modelConfig.Epochs = config.RECOMMENDER_EPOCHS
	modelConfig.LearningRate = config.RECOMMENDER_LEARNING_RATE
	modelConfig.Regularization = config.RECOMMENDER_REGULARIZATION

	recStore := recommender.NewStore(newKeyValueStore(ctx), recommender.DefaultTTL)
	all, err := recommender.Run(ctx, interactions, recStore, modelConfig, config.RECOMMENDATIONS_PER_USER)
	if err != nil {
		Log.Fatalln("recommender run failed: ", err)
	}

	if *OutputPath != "" {
		b, err := json.MarshalIndent(all, "", "  ")
		if err != nil {
			Log.Fatalln("cannot encode recommendations: ", err)
		}
		if err := ioutil.WriteFile(*OutputPath, b, 0644); err != nil {
			Log.Fatalln("cannot write recommendations: ", err)
		}
	}
	Log.Infof("stored recommendations for %d users", len(all))
}
