package origin

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/hszk-dev/countrytube/internal/domain/model"
	"github.com/hszk-dev/countrytube/internal/domain/repository"
)

const (
	// youtubeMaxResults is the largest page the videos endpoint returns.
	youtubeMaxResults = 50

	// youtubeConcurrency bounds parallel region fetches.
	youtubeConcurrency = 4
)

// YouTubeConfig holds configuration for the YouTube origin.
type YouTubeConfig struct {
	Regions   []string
	MaxVideos int
	// Countries supplies names and descriptions; regions missing from it
	// are named by their code.
	Countries map[string]model.Country
}

// YouTubeOrigin seeds each region with its mostPopular chart.
type YouTubeOrigin struct {
	service *youtube.Service
	config  YouTubeConfig
}

// Compile-time verification that YouTubeOrigin implements repository.Origin.
var _ repository.Origin = (*YouTubeOrigin)(nil)

// NewYouTubeOrigin creates the origin. Pass option.WithAPIKey in production;
// tests point option.WithEndpoint at a fake server.
func NewYouTubeOrigin(ctx context.Context, cfg YouTubeConfig, opts ...option.ClientOption) (*YouTubeOrigin, error) {
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube service: %w", err)
	}
	if cfg.MaxVideos <= 0 {
		cfg.MaxVideos = youtubeMaxResults
	}

	return &YouTubeOrigin{
		service: service,
		config:  cfg,
	}, nil
}

// Name identifies the origin in logs and metrics.
func (o *YouTubeOrigin) Name() string {
	return "youtube"
}

// Fetch downloads every configured region concurrently. Any failing region
// fails the whole fetch so a seed never publishes a partial catalog.
func (o *YouTubeOrigin) Fetch(ctx context.Context) ([]repository.SeedCountry, error) {
	out := make([]repository.SeedCountry, len(o.config.Regions))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(youtubeConcurrency)

	for i, region := range o.config.Regions {
		g.Go(func() error {
			code := model.NormalizeCountryCode(region)
			videos, err := o.fetchRegion(ctx, code)
			if err != nil {
				return fmt.Errorf("region %s: %w", code, err)
			}

			country, ok := o.config.Countries[code]
			if !ok {
				country = model.Country{Code: code, Name: code}
			}
			out[i] = repository.SeedCountry{Country: country, Videos: videos}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// fetchRegion pages through the chart until MaxVideos or the last page.
func (o *YouTubeOrigin) fetchRegion(ctx context.Context, region string) ([]model.VideoRecord, error) {
	var (
		videos    []model.VideoRecord
		pageToken string
	)

	for len(videos) < o.config.MaxVideos {
		call := o.service.Videos.List([]string{"snippet"}).
			Chart("mostPopular").
			RegionCode(region).
			MaxResults(youtubeMaxResults).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list videos: %w", err)
		}

		for _, item := range resp.Items {
			if item.Id == "" || len(videos) >= o.config.MaxVideos {
				continue
			}
			payload, err := json.Marshal(newVideoPayload(item))
			if err != nil {
				return nil, fmt.Errorf("failed to encode video %s: %w", item.Id, err)
			}
			videos = append(videos, model.VideoRecord{ID: item.Id, Payload: payload})
		}

		if resp.NextPageToken == "" || len(resp.Items) == 0 {
			break
		}
		pageToken = resp.NextPageToken
	}

	return videos, nil
}

// videoPayload is the subset of a YouTube video kept in the catalog.
type videoPayload struct {
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	ChannelTitle string     `json:"channelTitle"`
	PublishedAt  string     `json:"publishedAt"`
	Thumbnails   thumbnails `json:"thumbnails"`
}

type thumbnails struct {
	Default string `json:"default"`
	Medium  string `json:"medium"`
	High    string `json:"high"`
}

func newVideoPayload(v *youtube.Video) videoPayload {
	var p videoPayload
	s := v.Snippet
	if s == nil {
		return p
	}

	p.Title = s.Title
	p.Description = s.Description
	p.ChannelTitle = s.ChannelTitle
	p.PublishedAt = s.PublishedAt
	if t := s.Thumbnails; t != nil {
		p.Thumbnails.Default = thumbnailURL(t.Default)
		p.Thumbnails.Medium = thumbnailURL(t.Medium)
		p.Thumbnails.High = thumbnailURL(t.High)
	}
	return p
}

func thumbnailURL(t *youtube.Thumbnail) string {
	if t == nil {
		return ""
	}
	return t.Url
}
