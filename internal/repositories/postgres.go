package repositories

import (
	"errors"

	"github.com/lib/pq"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

func isUniqueViolation(err error) bool {
	return hasPQCode(err, pqUniqueViolation)
}

func isForeignKeyViolation(err error) bool {
	return hasPQCode(err, pqForeignKeyViolation)
}

func hasPQCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}
