package handlers

import (
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"

	"go-echo-foodgram/internal/services"
)

type PaginatedResponse[T any] struct {
	Count    int64   `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

func pageFromQuery(c echo.Context, defaultLimit int) services.Page {
	number, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	return services.NewPage(number, limit, defaultLimit)
}

func paginate[T any](c echo.Context, p *services.Paginated[T]) PaginatedResponse[T] {
	resp := PaginatedResponse[T]{
		Count:   p.Count,
		Results: p.Results,
	}
	if resp.Results == nil {
		resp.Results = make([]T, 0)
	}
	if p.Page.HasNext(p.Count) {
		next := pageURL(c, p.Page.Number+1)
		resp.Next = &next
	}
	if p.Page.HasPrevious() {
		prev := pageURL(c, p.Page.Number-1)
		resp.Previous = &prev
	}
	return resp
}

// pageURL rebuilds the request URL with another page number, keeping the
// other query parameters.
func pageURL(c echo.Context, page int) string {
	req := c.Request()
	query := req.URL.Query()
	if page == 1 {
		query.Del("page")
	} else {
		query.Set("page", strconv.Itoa(page))
	}

	u := url.URL{
		Scheme:   c.Scheme(),
		Host:     req.Host,
		Path:     req.URL.Path,
		RawQuery: query.Encode(),
	}
	return u.String()
}
