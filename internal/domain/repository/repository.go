// Package repository 定义数据访问层接口
package repository

import (
	"context"
)

// 分页边界
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// TxKey 事务上下文键类型
type TxKey struct{}

// Transactor 事务管理接口，嵌套调用复用外层事务
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Pagination 分页参数，Page 从 1 开始
type Pagination struct {
	Page     int
	PageSize int
}

// NewPagination 创建分页参数，越界值收敛到合法范围
func NewPagination(page, pageSize int) Pagination {
	p := Pagination{Page: max(page, 1), PageSize: pageSize}
	switch {
	case p.PageSize < 1:
		p.PageSize = DefaultPageSize
	case p.PageSize > MaxPageSize:
		p.PageSize = MaxPageSize
	}
	return p
}

// Offset 计算偏移量
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Limit 单页条数
func (p Pagination) Limit() int {
	return p.PageSize
}

// PagedResult 分页结果
type PagedResult[T any] struct {
	Items      []T
	Total      int64
	Page       int
	PageSize   int
	TotalPages int
}

// NewPagedResult 创建分页结果
func NewPagedResult[T any](items []T, total int64, pagination Pagination) *PagedResult[T] {
	pages := 0
	if pagination.PageSize > 0 {
		pages = int((total + int64(pagination.PageSize) - 1) / int64(pagination.PageSize))
	}
	return &PagedResult[T]{
		Items:      items,
		Total:      total,
		Page:       pagination.Page,
		PageSize:   pagination.PageSize,
		TotalPages: pages,
	}
}

// MapPaged 转换分页结果中的元素，分页信息保持不变
func MapPaged[T, U any](in *PagedResult[T], fn func(T) (U, error)) (*PagedResult[U], error) {
	items := make([]U, 0, len(in.Items))
	for _, item := range in.Items {
		out, err := fn(item)
		if err != nil {
			return nil, err
		}
		items = append(items, out)
	}
	return &PagedResult[U]{
		Items:      items,
		Total:      in.Total,
		Page:       in.Page,
		PageSize:   in.PageSize,
		TotalPages: in.TotalPages,
	}, nil
}
