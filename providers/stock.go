package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"PromptToVideo-server/config"
)

// StockClient searches a Pexels-style stock footage API.
type StockClient struct {
	cfg        *config.Config
	httpClient *http.Client
}

func NewStockClient(cfg *config.Config) *StockClient {
	return &StockClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type stockSearchResponse struct {
	Videos []struct {
		ID       int     `json:"id"`
		Duration float64 `json:"duration"`
		Width    int     `json:"width"`
		Height   int     `json:"height"`
		Image    string  `json:"image"`
		Files    []struct {
			Link    string `json:"link"`
			Quality string `json:"quality"`
			Width   int    `json:"width"`
			Height  int    `json:"height"`
		} `json:"video_files"`
	} `json:"videos"`
}

// Search returns candidate clips for the keywords whose duration falls
// inside [minDuration, maxDuration]. Zero results is a valid outcome and
// returns an empty slice with no error; only transport and provider errors
// are reported.
func (c *StockClient) Search(ctx context.Context, keywords []string, minDuration, maxDuration int) ([]MediaItem, error) {
	q := url.Values{}
	q.Set("query", strings.Join(keywords, " "))
	q.Set("min_duration", strconv.Itoa(minDuration))
	q.Set("max_duration", strconv.Itoa(maxDuration))
	q.Set("per_page", "5")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Stock.Addr+"/videos/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.cfg.Stock.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if kindErr := classifyStatus(resp.StatusCode); kindErr != nil {
		return nil, fmt.Errorf("%w: status %d", kindErr, resp.StatusCode)
	}

	var searchResp stockSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	items := make([]MediaItem, 0, len(searchResp.Videos))
	for _, v := range searchResp.Videos {
		link := ""
		// Prefer an HD file, fall back to whatever the provider listed first.
		for _, f := range v.Files {
			if f.Quality == "hd" {
				link = f.Link
				break
			}
		}
		if link == "" && len(v.Files) > 0 {
			link = v.Files[0].Link
		}
		if link == "" {
			continue
		}
		items = append(items, MediaItem{
			ID:         strconv.Itoa(v.ID),
			Kind:       "video",
			URL:        link,
			PreviewURL: v.Image,
			Duration:   v.Duration,
			Width:      v.Width,
			Height:     v.Height,
		})
	}
	return items, nil
}
