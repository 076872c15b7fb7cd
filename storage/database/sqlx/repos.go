// Package sqlxrepos implements the core repositories on PostgreSQL. Every
// repository holds the pool as its default executor; callers running inside
// a transaction pass it through the trailing exec argument.
package sqlxrepos

import (
	"strconv"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/newedu/guardian/core"
)

const uniqueViolation = "23505"

func getExec(repoExec core.DBExecutor, svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repoExec
}

func itoa(n int) string { return strconv.Itoa(n) }

// isUniqueViolation reports whether err is a duplicate-key error, optionally
// on one specific constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return constraint == "" || pqErr.Constraint == constraint
	}
	return false
}
