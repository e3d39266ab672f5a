// Package pagination нормализует параметры постраничной выдачи
package pagination

import "math"

const (
	DefaultLimit = 10
	MaxLimit     = 100
	// MaxNumber последняя допустимая страница: смещение помещается в int32
	MaxNumber    = math.MaxInt32 / MaxLimit
)

// Page запрошенная страница; Number начинается с 1
type Page struct {
	Number int
	Limit  int
}

// New приводит параметры к допустимым границам
func New(number, limit int) Page {
	if number < 1 {
		number = 1
	}
	if number > MaxNumber {
		number = MaxNumber
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Page{Number: number, Limit: limit}
}

// Offset смещение первой записи страницы
func (p Page) Offset() uint64 {
	if p.Number < 1 || p.Limit < 1 {
		return 0
	}
	return uint64(p.Number-1) * uint64(p.Limit)
}

// Meta блок pagination в ответе
type Meta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewMeta считает totalPages = ceil(total/limit)
func NewMeta(p Page, total int) Meta {
	pages := 0
	if p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return Meta{Page: p.Number, Limit: p.Limit, Total: total, TotalPages: pages}
}
