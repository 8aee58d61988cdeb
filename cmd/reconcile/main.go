package main

import (
	"context"

	"github.com/playlog/backend/app_config"
	"github.com/playlog/backend/review"
	"github.com/playlog/backend/store"
	. "github.com/playlog/backend/utils"
	"github.com/playlog/backend/utils/dotenv"
	"github.com/playlog/backend/utils/flag"
	. "github.com/playlog/backend/utils/log"
	"github.com/sirupsen/logrus"
)

// Rebuilds every game's review aggregate from the stored reviews and logs
// the games whose aggregate had drifted.
func main() {
	flag.Parse()
	if err := dotenv.LoadDotEnvs(); err != nil {
		panic(err)
	}
	InitLogger()

	config, err := app_config.ParsePlaylogAppConfig(*flag.AppConfigPath)
	if err != nil {
		Log.Fatalln("invalid app config: ", err)
	}

	db, err := GetDBConnection()
	if err != nil {
		Log.Fatalln("cannot connect to DB: ", err)
	}

	reviews := review.NewService(store.NewGormStore(db, config.TRANSACTION_MAX_RETRY), nil, nil, review.Config{
		MaxFreeReviews: config.MAX_FREE_REVIEWS,
		MaxBodyLength:  config.MAX_REVIEW_BODY_LENGTH,
	})
	drifts, err := reviews.RecomputeAll(context.Background())
	for _, d := range drifts {
		Log.WithFields(logrus.Fields{
			"game_id":        d.After.GameId,
			"count_before":   d.Before.ReviewCount,
			"count_after":    d.After.ReviewCount,
			"average_before": d.Before.AverageRating,
			"average_after":  d.After.AverageRating,
		}).Warn("repaired drifted review aggregate")
	}
	if err != nil {
		Log.Fatalln("reconcile stopped: ", err)
	}
	Log.Infof("reconcile finished, %d games repaired", len(drifts))
}
