package core

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type (
	// Transactor runs fn so that its writes either all land or none do, when the store supports it.
	// Stores without multi-document transactions run fn as is.
	Transactor interface {
		WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	}

	DBOrdering struct {
		Field     string
		Ascending bool
	}

	Pagination struct {
		Page  int `json:"page"`
		Limit int `json:"limit"`
		Pages int `json:"pages"`
	}
)

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// NewPagination clamps page & limit. A zero limit disables pagination.
func NewPagination(page, limit int) *Pagination {
	if limit <= 0 {
		return nil
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if page < 1 {
		page = 1
	}
	return &Pagination{Page: page, Limit: limit}
}

func (p *Pagination) Skip() int {
	return (p.Page - 1) * p.Limit
}

// SetTotal computes the number of pages for total records.
func (p *Pagination) SetTotal(total int) {
	p.Pages = (total + p.Limit - 1) / p.Limit
}

// NewID returns a new store-native identifier.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// IsValidID reports whether id is in the store's reference format.
func IsValidID(id string) bool {
	return primitive.IsValidObjectID(id)
}

// CheckID returns a MalformedIDError if id is not a valid identifier.
func CheckID(field, id string) error {
	if !IsValidID(id) {
		return NewMalformedIDError(field, id)
	}
	return nil
}
