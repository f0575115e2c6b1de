package mysql

import (
	"database/sql"
	"errors"

	mysqldrv "github.com/go-sql-driver/mysql"
)

// MySQL server error numbers.
const (
	errDupEntry        = 1062
	errNoReferencedRow = 1452
)

func mysqlError(err error) (*mysqldrv.MySQLError, bool) {
	var myErr *mysqldrv.MySQLError
	if errors.As(err, &myErr) {
		return myErr, true
	}
	return nil, false
}

// isUniqueViolation checks if an error is a duplicate key error.
func isUniqueViolation(err error) bool {
	myErr, ok := mysqlError(err)
	return ok && myErr.Number == errDupEntry
}

// isForeignKeyViolation checks if an error is a foreign key constraint violation.
func isForeignKeyViolation(err error) bool {
	myErr, ok := mysqlError(err)
	return ok && myErr.Number == errNoReferencedRow
}

// isNoRows checks if an error indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
