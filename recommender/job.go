package recommender

import (
	"context"

	"github.com/pkg/errors"
	"github.com/playlog/backend/model"
	Logger "github.com/playlog/backend/utils/log"
	"github.com/sirupsen/logrus"
)

// InteractionSource lists every rating known to the system, implemented by
// store.Store over the review table.
type InteractionSource interface {
	ListInteractions(ctx context.Context) ([]model.Interaction, error)
}

// Run trains a model on all interactions and stores the top n games of
// every user. It returns what was stored, keyed by user.
func Run(ctx context.Context, interactions []model.Interaction, store *Store, config Config, n int) (map[string][]model.Recommendation, error) {
	ds := NewDataset(interactions)
	if ds.NumRatings() == 0 {
		Logger.Log.Warn("no interactions to train the recommender on")
		return map[string][]model.Recommendation{}, nil
	}
	m := Train(ds, config)
	Logger.Log.WithFields(logrus.Fields{
		"users":   ds.NumUsers(),
		"games":   ds.NumItems(),
		"ratings": ds.NumRatings(),
		"rmse":    m.TrainingRMSE(),
	}).Info("recommender trained")

	all := m.RecommendAll(n)
	if err := store.SaveAll(ctx, all); err != nil {
		return nil, errors.Wrap(err, "store recommendations")
	}
	return all, nil
}

// LoadInteractions reads interactions from the review table.
func LoadInteractions(ctx context.Context, source InteractionSource) ([]model.Interaction, error) {
	interactions, err := source.ListInteractions(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list interactions")
	}
	return interactions, nil
}
