package utils

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

var (
	ErrorRecordNotFound = errors.New("record not found")
	ErrorDuplicate      = errors.New("record already exists")
	ErrorInvalidInput   = errors.New("invalid input")
)

const mysqlDuplicateEntry = 1062

// IsDuplicateKey reports whether err is a MySQL unique constraint violation.
func IsDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}
