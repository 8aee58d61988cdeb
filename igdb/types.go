package igdb

import (
	"time"

	"github.com/jinzhu/copier"
	"github.com/pkg/errors"
	"github.com/playlog/backend/model"
	"github.com/playlog/backend/utils"
)

const (
	imageBaseUrl   = "https://images.igdb.com/igdb/image/upload"
	coverSize      = "t_cover_big"
	screenshotSize = "t_screenshot_big"
	youtubeBaseUrl = "https://www.youtube.com/watch?v="
)

var (
	summaryFields = []string{
		"name", "cover.image_id", "total_rating", "total_rating_count",
		"platforms.name", "genres.name", "first_release_date",
	}
	detailFields = append(append([]string{}, summaryFields...),
		"summary", "storyline", "screenshots.image_id", "videos.video_id",
		"involved_companies.company.name", "involved_companies.developer", "similar_games",
	)
)

type image struct {
	ImageId string `json:"image_id"`
}

type named struct {
	Name string `json:"name"`
}

type video struct {
	VideoId string `json:"video_id"`
}

type involvedCompany struct {
	Company   named `json:"company"`
	Developer bool  `json:"developer"`
}

// game mirrors the subset of the IGDB game object we request. Fields whose
// shape differs from the model are named apart so copier only moves the
// scalar ones.
type game struct {
	Id                int64             `json:"id"`
	Name              string            `json:"name"`
	Summary           string            `json:"summary"`
	Storyline         string            `json:"storyline"`
	CoverImage        *image            `json:"cover"`
	TotalRating       float64           `json:"total_rating"`
	TotalRatingCount  int64             `json:"total_rating_count"`
	PlatformRefs      []named           `json:"platforms"`
	GenreRefs         []named           `json:"genres"`
	FirstReleaseDate  int64             `json:"first_release_date"`
	ScreenshotRefs    []image           `json:"screenshots"`
	VideoRefs         []video           `json:"videos"`
	InvolvedCompanies []involvedCompany `json:"involved_companies"`
	SimilarGames      []int64           `json:"similar_games"`
}

func imageUrl(size string, imageId string) string {
	if imageId == "" {
		return ""
	}
	return imageBaseUrl + "/" + size + "/" + imageId + ".jpg"
}

func names(items []named) []string {
	res := []string{}
	for _, n := range items {
		if n.Name != "" {
			res = append(res, n.Name)
		}
	}
	return res
}

// toSummary maps an IGDB game onto a card. IGDB rates on 0..100, cards use
// the same 0..10 scale as reviews.
func toSummary(g game) (model.GameSummary, error) {
	s := model.GameSummary{}
	if err := copier.Copy(&s, &g); err != nil {
		return s, errors.Wrap(err, "copy igdb game")
	}
	if g.CoverImage != nil {
		s.CoverUrl = imageUrl(coverSize, g.CoverImage.ImageId)
	}
	s.Rating = utils.RoundTo(g.TotalRating/10, 1)
	s.RatingCount = g.TotalRatingCount
	s.Platforms = names(g.PlatformRefs)
	s.Genres = names(g.GenreRefs)
	if g.FirstReleaseDate > 0 {
		s.ReleaseDate = time.Unix(g.FirstReleaseDate, 0).UTC()
	}
	return s, nil
}

func toDetails(g game) (model.GameDetails, error) {
	d := model.GameDetails{}
	summary, err := toSummary(g)
	if err != nil {
		return d, err
	}
	if err := copier.Copy(&d, &g); err != nil {
		return d, errors.Wrap(err, "copy igdb game details")
	}
	d.GameSummary = summary
	d.Screenshots = []string{}
	for _, s := range g.ScreenshotRefs {
		if u := imageUrl(screenshotSize, s.ImageId); u != "" {
			d.Screenshots = append(d.Screenshots, u)
		}
	}
	d.Videos = []string{}
	for _, v := range g.VideoRefs {
		if v.VideoId != "" {
			d.Videos = append(d.Videos, youtubeBaseUrl+v.VideoId)
		}
	}
	d.Developers = []string{}
	for _, c := range g.InvolvedCompanies {
		if c.Developer && c.Company.Name != "" {
			d.Developers = append(d.Developers, c.Company.Name)
		}
	}
	if d.SimilarGames == nil {
		d.SimilarGames = []int64{}
	}
	return d, nil
}

func toSummaries(games []game) ([]model.GameSummary, error) {
	res := make([]model.GameSummary, 0, len(games))
	for _, g := range games {
		s, err := toSummary(g)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, nil
}
