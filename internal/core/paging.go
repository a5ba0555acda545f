package core

// MaxPageRows is the store's hard cap on rows returned by a single query.
// Every bulk read must page with FetchAllPages; a single unpaged query
// silently truncates large lotes.
const MaxPageRows = 1000

// FetchAllPages drains a range-paginated read by looping with an
// offset/limit cursor until a short page comes back. pageSize must be at
// most the store's per-query cap.
func FetchAllPages[T any](pageSize int, fetch func(limit, offset int) ([]T, error)) ([]T, error) {
	if pageSize <= 0 || pageSize > MaxPageRows {
		pageSize = MaxPageRows
	}
	var all []T
	for offset := 0; ; offset += pageSize {
		page, err := fetch(pageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}
