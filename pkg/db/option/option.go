package option

import (
	"time"

	"licensehub-engine/pkg/db/pagination"

	"gorm.io/gorm"
)

// QueryOption mutates a gorm query before it executes.
type QueryOption func(*gorm.DB) *gorm.DB

func ApplyPagination(p pagination.Pagination) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		if p.Limit > 0 {
			tx = tx.Limit(p.Limit)
		}

		if p.Cursor != "" {
			cursor, err := pagination.DecodeCursor(p.Cursor)
			if err == nil && cursor.CreatedAt != "" {
				if at, perr := time.Parse(time.RFC3339Nano, cursor.CreatedAt); perr == nil {
					tx = tx.Where("created_at < ?", at)
				}
			}
		}

		return tx
	}
}

func WithSort(field, direction string) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		if field == "" {
			return tx
		}
		if direction != "desc" {
			direction = "asc"
		}
		return tx.Order(field + " " + direction)
	}
}

func WithLimit(limit int) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		if limit > 0 {
			tx = tx.Limit(limit)
		}
		return tx
	}
}

// Where appends an extra condition beyond the struct query, for predicates a
// zero value cannot express (IS NOT NULL, ranges).
func Where(query interface{}, args ...interface{}) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where(query, args...)
	}
}
