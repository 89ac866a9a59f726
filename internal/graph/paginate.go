package graph

import (
	"context"
	"net/url"
)

// Page is one page of a Graph edge response.
type Page struct {
	Data   []map[string]any `json:"data"`
	Paging struct {
		Cursors struct {
			Before string `json:"before"`
			After  string `json:"after"`
		} `json:"cursors"`
		Next     string `json:"next"`
		Previous string `json:"previous"`
	} `json:"paging"`
}

// GetData fetches a single page of an edge and returns its "data" array.
func (c *Client) GetData(ctx context.Context, path string, params url.Values) ([]map[string]any, error) {
	var p Page
	if err := c.Get(ctx, path, params, &p); err != nil {
		return nil, err
	}
	return p.Data, nil
}

// Paginate walks an edge with cursor pagination, passing each non-empty
// page of records to fn. It stops when the response carries no next link,
// no after cursor, no data, or repeats a cursor.
func (c *Client) Paginate(ctx context.Context, path string, params url.Values, fn func([]map[string]any) error) error {
	q := url.Values{}
	for k, v := range params {
		q[k] = append([]string(nil), v...)
	}
	seen := map[string]bool{}

	for {
		var p Page
		if err := c.Get(ctx, path, q, &p); err != nil {
			return err
		}
		if len(p.Data) == 0 {
			return nil
		}
		if err := fn(p.Data); err != nil {
			return err
		}

		after := p.Paging.Cursors.After
		if p.Paging.Next == "" || after == "" || seen[after] {
			return nil
		}
		seen[after] = true
		q.Set("after", after)
	}
}
