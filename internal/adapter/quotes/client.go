package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"adswap/internal/content"
)

// Client fetches a quote of the day. It understands the {content, author}
// object shape and the zenquotes [{q, a}] array shape.
type Client struct {
	client  *http.Client
	baseURL string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

type quoteObject struct {
	Content string `json:"content"`
	Author  string `json:"author"`
	Q       string `json:"q"`
	A       string `json:"a"`
}

func (o quoteObject) toDaily() content.DailyQuote {
	q := content.DailyQuote{Content: o.Content, Author: o.Author}
	if q.Content == "" {
		q.Content = o.Q
	}
	if q.Author == "" {
		q.Author = o.A
	}
	return q
}

func (c *Client) FetchQuote(ctx context.Context) (content.DailyQuote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return content.DailyQuote{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return content.DailyQuote{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return content.DailyQuote{}, fmt.Errorf("quote api error: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return content.DailyQuote{}, err
	}

	var obj quoteObject
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var arr []quoteObject
		if err := json.Unmarshal(body, &arr); err != nil {
			return content.DailyQuote{}, fmt.Errorf("decode quote: %w", err)
		}
		if len(arr) == 0 {
			return content.DailyQuote{}, fmt.Errorf("quote api returned no quotes")
		}
		obj = arr[0]
	} else if err := json.Unmarshal(body, &obj); err != nil {
		return content.DailyQuote{}, fmt.Errorf("decode quote: %w", err)
	}

	q := obj.toDaily()
	if q.Content == "" {
		return content.DailyQuote{}, fmt.Errorf("quote api returned empty content")
	}
	if q.Author == "" {
		q.Author = "Unknown"
	}
	return q, nil
}
