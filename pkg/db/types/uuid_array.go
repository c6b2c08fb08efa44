package dbtypes

import (
	"database/sql/driver"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// UUIDArray maps to a Postgres uuid[] column. SQLite stores the same array
// literal in a text column.
type UUIDArray []uuid.UUID

func (UUIDArray) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "uuid[]"
	}
	return "text"
}

// Scan decodes a Postgres array literal; NULL becomes an empty array.
func (a *UUIDArray) Scan(src any) error {
	var raw pq.StringArray
	if err := raw.Scan(src); err != nil {
		return fmt.Errorf("uuid array: %w", err)
	}
	out := make(UUIDArray, len(raw))
	for i, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return fmt.Errorf("uuid array element %d: %w", i, err)
		}
		out[i] = id
	}
	*a = out
	return nil
}

func (a UUIDArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "{}", nil
	}
	return pq.StringArray(a.Strings()).Value()
}

func (a UUIDArray) Strings() []string {
	out := make([]string, len(a))
	for i, id := range a {
		out[i] = id.String()
	}
	return out
}

func (a UUIDArray) Contains(id uuid.UUID) bool {
	return slices.Contains(a, id)
}

// Only keeps the elements present in keep, in a's order.
func (a UUIDArray) Only(keep []uuid.UUID) UUIDArray {
	return slices.DeleteFunc(slices.Clone(a), func(id uuid.UUID) bool {
		return !slices.Contains(keep, id)
	})
}
