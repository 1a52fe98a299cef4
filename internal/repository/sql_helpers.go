package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrConflict は一意制約違反を表す。
// 呼び出し側は事前チェックとの競合をerrors.Isで判定する。
var ErrConflict = errors.New("unique constraint violation")

// uniqueViolation はPostgreSQLの一意制約違反コード。
const uniqueViolation = "23505"

// 呼び出し側が判別する一意インデックス名。
const (
	ConstraintUserEmail    = "idx_users_email"
	ConstraintUserUsername = "idx_users_username"
)

// ConflictError は違反した制約名を保持する一意制約違反。
// errors.Is(err, ErrConflict)はtrueになる。
type ConflictError struct {
	Op         string
	Constraint string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %v (%s)", e.Op, ErrConflict, e.Constraint)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// ConflictConstraint はerrに含まれる一意制約違反の制約名を返す。
func ConflictConstraint(err error) (string, bool) {
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		return "", false
	}
	return conflict.Constraint, true
}

// wrapConflict は一意制約違反をConflictErrorに変換する。
// それ以外のエラーはmsgを付けてそのままラップする。
func wrapConflict(err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return &ConflictError{Op: msg, Constraint: pqErr.Constraint}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// nullString は空文字列をNULLとして扱うsql.NullStringを返す。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
