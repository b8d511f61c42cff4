package social

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tradepilot/internal/signal"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// Reddit 读取子版块热帖（公开 JSON 接口）。
type Reddit struct {
	client  *resty.Client
	limiter *rate.Limiter
	limit   int
}

func NewReddit(opts ClientOptions, postLimit int) *Reddit {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://www.reddit.com"
	}
	if postLimit <= 0 || postLimit > 100 {
		postLimit = 25
	}
	return &Reddit{
		client:  newRestyClient(opts),
		limiter: newLimiter(opts.RatePerSecond),
		limit:   postLimit,
	}
}

type listingResponse struct {
	Data struct {
		Children []struct {
			Data struct {
				ID          string  `json:"id"`
				Title       string  `json:"title"`
				Selftext    string  `json:"selftext"`
				Subreddit   string  `json:"subreddit"`
				Score       int     `json:"score"`
				NumComments int     `json:"num_comments"`
				CreatedUTC  float64 `json:"created_utc"`
				Stickied    bool    `json:"stickied"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Hot 返回子版块热帖。
func (r *Reddit) Hot(ctx context.Context, subreddit string) ([]signal.Post, error) {
	subreddit = strings.TrimSpace(subreddit)
	if subreddit == "" {
		return nil, fmt.Errorf("subreddit cannot be empty")
	}
	var resp listingResponse
	path := "/r/" + url.PathEscape(subreddit) + "/hot.json"
	query := map[string]string{"limit": strconv.Itoa(r.limit)}
	if err := get(ctx, r.client, r.limiter, "reddit", path, query, &resp); err != nil {
		return nil, err
	}
	out := make([]signal.Post, 0, len(resp.Data.Children))
	for _, child := range resp.Data.Children {
		d := child.Data
		post := signal.Post{
			ID:        d.ID,
			Subreddit: subreddit,
			Title:     d.Title,
			Body:      d.Selftext,
			Upvotes:   d.Score,
			Comments:  d.NumComments,
		}
		if d.CreatedUTC > 0 {
			sec, frac := math.Modf(d.CreatedUTC)
			post.CreatedAt = time.Unix(int64(sec), int64(frac*1e9)).UTC()
		}
		out = append(out, post)
	}
	return out, nil
}
