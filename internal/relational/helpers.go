package relational

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
)

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}

func inQuery(query string, ids []int64) (string, []interface{}, error) {
	return sqlx.In(query, ids)
}
