package services

const (
	DefaultPageSize = 6
	MaxPageSize     = 100
)

type Page struct {
	Number int
	Limit  int
}

// NewPage clamps user supplied values; defaultLimit <= 0 means DefaultPageSize.
func NewPage(number, limit, defaultLimit int) Page {
	if defaultLimit <= 0 {
		defaultLimit = DefaultPageSize
	}
	if number < 1 {
		number = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return Page{Number: number, Limit: limit}
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Limit
}

func (p Page) HasNext(count int64) bool {
	return int64(p.Number*p.Limit) < count
}

func (p Page) HasPrevious() bool {
	return p.Number > 1
}

type Paginated[T any] struct {
	Count   int64
	Page    Page
	Results []T
}
