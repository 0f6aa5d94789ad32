package repository

import (
	"strings"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// SearchParams are the paging, sorting and keyword inputs shared by every
// entity search. PageNumber is 1-based.
type SearchParams struct {
	Keyword         string
	PageNumber      int
	PageSize        int
	OrderBy         string
	OrderDirection  string // "asc" or "desc"; anything else uses the entity default
	IncludeInactive bool
}

// Normalize clamps paging to sane bounds.
func (p SearchParams) Normalize() SearchParams {
	if p.PageNumber < 1 {
		p.PageNumber = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	p.Keyword = strings.TrimSpace(p.Keyword)
	return p
}

// Offset is the number of rows skipped before the current page.
func (p SearchParams) Offset() int {
	p = p.Normalize()
	return (p.PageNumber - 1) * p.PageSize
}

// Page is one slice of a search result plus the total match count.
type Page[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"total_count"`
	PageNumber int   `json:"page_number"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

func NewPage[T any](items []T, total int64, p SearchParams) Page[T] {
	p = p.Normalize()
	if items == nil {
		items = []T{}
	}
	pages := int((total + int64(p.PageSize) - 1) / int64(p.PageSize))
	return Page[T]{Items: items, TotalCount: total, PageNumber: p.PageNumber, PageSize: p.PageSize, TotalPages: pages}
}

// MapPage converts the items of a page, keeping the paging metadata.
func MapPage[T, U any](in Page[T], fn func(T) U) Page[U] {
	out := make([]U, len(in.Items))
	for i, v := range in.Items {
		out[i] = fn(v)
	}
	return Page[U]{Items: out, TotalCount: in.TotalCount, PageNumber: in.PageNumber, PageSize: in.PageSize, TotalPages: in.TotalPages}
}

// searchSpec describes how one entity is searched.
type searchSpec struct {
	alias       string            // table alias used in every predicate
	keywordCols []string          // columns matched against the keyword
	sortCols    map[string]string // accepted sort keys (normalised) -> column
	defaultSort string            // column used when OrderBy is unknown
	defaultDesc bool
	hasActive   bool // table carries is_active
}

// where accumulates AND-ed predicates and their arguments.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// base starts a filter with the soft-delete predicate, the active filter
// and the keyword match.
func (s searchSpec) base(p SearchParams) *where {
	w := &where{}
	w.add(s.alias + ".is_deleted = 0")
	if s.hasActive && !p.IncludeInactive {
		w.add(s.alias + ".is_active = 1")
	}
	if kw := strings.TrimSpace(p.Keyword); kw != "" && len(s.keywordCols) > 0 {
		like := "%" + escapeLike(strings.ToLower(kw)) + "%"
		ors := make([]string, len(s.keywordCols))
		for i, c := range s.keywordCols {
			ors[i] = "LOWER(" + c + ") LIKE ?"
			w.args = append(w.args, like)
		}
		w.clauses = append(w.clauses, "("+strings.Join(ors, " OR ")+")")
	}
	return w
}

// orderBy resolves the sort column from the whitelist. An unknown field
// uses the entity default field and direction. The id tiebreaker keeps
// pages stable when the sort column has duplicates.
func (s searchSpec) orderBy(p SearchParams) string {
	col, ok := s.sortCols[sortKey(p.OrderBy)]
	desc := s.defaultDesc
	if ok {
		switch strings.ToLower(strings.TrimSpace(p.OrderDirection)) {
		case "desc", "descending":
			desc = true
		case "asc", "ascending":
			desc = false
		}
	} else {
		col = s.defaultSort
	}
	dir := " ASC"
	if desc {
		dir = " DESC"
	}
	return " ORDER BY " + col + dir + ", " + s.alias + ".id ASC"
}

// limit appends LIMIT/OFFSET arguments for the normalised page.
func limit(p SearchParams, args []any) (string, []any) {
	p = p.Normalize()
	return " LIMIT ? OFFSET ?", append(args, p.PageSize, p.Offset())
}

func sortKey(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
