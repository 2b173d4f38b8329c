package db

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	mysqlDuplicateEntry   = 1062
	pgUniqueViolation     = "23505"
	pgInvalidColumnRef    = "42P10"
	sqliteNoConflictIndex = "ON CONFLICT clause does not match any PRIMARY KEY or UNIQUE constraint"
)

// IsDuplicateKey reports whether err is a unique constraint violation from
// any supported backend.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsMissingConflictTarget reports whether err means an ON CONFLICT clause
// named columns that carry no unique constraint, as happens on schemas
// created outside AutoMigrate.
func IsMissingConflictTarget(err error) bool {
	if err == nil {
		return false
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == pgInvalidColumnRef
	}
	return strings.Contains(err.Error(), sqliteNoConflictIndex)
}
