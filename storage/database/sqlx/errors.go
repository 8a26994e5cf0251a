package sqlxrepos

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// pqConstraint returns the violated constraint name if err is a postgres error with one of the given codes.
func pqConstraint(err error, codes ...string) (string, bool) {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return "", false
	}
	for _, code := range codes {
		if string(pqErr.Code) == code {
			return pqErr.Constraint, true
		}
	}
	return "", false
}

func isNoRows(err error) bool {
	return err == sql.ErrNoRows
}

// isUUID reports whether id can be compared with a uuid column.
// Any other ID cannot match a row.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
