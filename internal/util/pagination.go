package util

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Calculate turns 1-based page and size query values into an offset and a
// limit, falling back to the first page of DefaultPageSize.
func Calculate(page, size int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return (page - 1) * size, size
}
