package util

import "strconv"

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Paging is a normalized page request.
type Paging struct {
	Page   int
	Size   int
	Offset int
}

func Calculate(page, size int) Paging {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > MaxPageSize {
		size = DefaultPageSize
	}
	return Paging{Page: page, Size: size, Offset: (page - 1) * size}
}

// ParsePaging reads ?page=&size= leniently; garbage falls back to defaults.
func ParsePaging(page, size string) Paging {
	p, _ := strconv.Atoi(page)
	s, _ := strconv.Atoi(size)
	return Calculate(p, s)
}
