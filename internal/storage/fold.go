package storage

import (
	"database/sql/driver"
	"strings"

	"modernc.org/sqlite"
)

// foldFunc lowercases text with Unicode case rules. SQLite's LOWER only
// folds ASCII, so "Émile" would never match "émile".
const foldFunc = "unicode_lower"

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(foldFunc, 1, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		switch v := args[0].(type) {
		case string:
			return strings.ToLower(v), nil
		case []byte:
			return strings.ToLower(string(v)), nil
		default:
			return v, nil
		}
	})
}

// lower names the case-folding SQL function for the connected backend.
func (q *Queries) lower() string {
	if q.driver == DriverSQLite {
		return foldFunc
	}
	return "LOWER"
}
