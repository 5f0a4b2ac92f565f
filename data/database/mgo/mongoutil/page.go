package mongoutil

import (
	"context"
	"math"

	"PPAdmin/tools/errs"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
	// MaxSkip 最大偏移量，超过的页码按最后可达页处理
	MaxSkip = math.MaxInt32
)

// Pagination describes one page of a listing; NextPage is 0 on the last page.
type Pagination struct {
	CurrentPage int   `json:"current_page"`
	NextPage    int   `json:"next_page,omitempty"`
	TotalPages  int   `json:"total_pages"`
	TotalItems  int64 `json:"total_items"`
}

// NormalizePage clamps limit to [1, MaxPageLimit] and page to
// [1, MaxSkip/limit], so (page-1)*limit never overflows or goes negative.
func NormalizePage(page, limit int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if page < 1 {
		page = 1
	}
	if maxPage := MaxSkip / limit; page > maxPage {
		page = maxPage
	}
	return page, limit
}

func NewPagination(page, limit int, total int64) Pagination {
	pages := int((total + int64(limit) - 1) / int64(limit))
	p := Pagination{CurrentPage: page, TotalPages: pages, TotalItems: total}
	if page < pages {
		p.NextPage = page + 1
	}
	return p
}

// FindPage runs filter with sort, skipping to the requested page.
func FindPage[T any](ctx context.Context, coll *mongo.Collection, filter, sort any, page, limit int) ([]T, Pagination, error) {
	page, limit = NormalizePage(page, limit)
	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, Pagination{}, errs.WrapMsg(err, "count", "collection", coll.Name())
	}
	opts := options.Find().
		SetSort(sort).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))
	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, Pagination{}, errs.WrapMsg(err, "find", "collection", coll.Name())
	}
	out := make([]T, 0, limit)
	if err := cur.All(ctx, &out); err != nil {
		return nil, Pagination{}, errs.WrapMsg(err, "decode", "collection", coll.Name())
	}
	return out, NewPagination(page, limit, total), nil
}
