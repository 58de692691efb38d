package mysql

import "fmt"

type queries struct {
	selectEligible string
	markRented     string
	finishOne      string
	postponeOne    string
	requeueOne     string
	extendLease    string
	insertType     string
	loadTypes      string
	insertError    string
	detectTenants  string
}

const deliveryCols = "id, payload_id, tenant_id, part, type_code, payload, created_at, attempt_count"

func newQueries(table, typesTable, errorsTable string) queries {
	selectEligible := fmt.Sprintf(
		"SELECT %s FROM %s"+
			" WHERE part = ? AND tenant_id = ? AND created_ts >= ?"+
			" AND ((status_code = ? AND (process_after IS NULL OR process_after <= ?))"+
			" OR (status_code = ? AND lock_expires_at < ?))"+
			" ORDER BY id ASC LIMIT ? FOR UPDATE SKIP LOCKED",
		deliveryCols,
		table,
	)
	markRented := fmt.Sprintf(
		"UPDATE %s SET status_code = ?, lock_owner = ?, lock_expires_at = ?, attempt_count = attempt_count + 1 WHERE id IN (%%s)",
		table,
	)
	finishOne := fmt.Sprintf(
		"UPDATE %s SET status_code = ?, lock_owner = NULL, lock_expires_at = NULL, last_error = ?, delivered_at = ? WHERE id = ? AND lock_owner = ?",
		table,
	)
	postponeOne := fmt.Sprintf(
		"UPDATE %s SET status_code = ?, lock_owner = NULL, lock_expires_at = NULL, process_after = ?, attempt_count = attempt_count - 1 WHERE id = ? AND lock_owner = ?",
		table,
	)
	requeueOne := fmt.Sprintf(
		"UPDATE %s SET status_code = ?, lock_owner = NULL, lock_expires_at = NULL, last_error = ? WHERE id = ? AND lock_owner = ?",
		table,
	)
	extendLease := fmt.Sprintf(
		"UPDATE %s SET lock_expires_at = ? WHERE part = ? AND tenant_id = ? AND status_code = ? AND lock_owner = ?",
		table,
	)
	insertType := fmt.Sprintf(
		"INSERT INTO %s (code, type_name) VALUES (?, ?) ON DUPLICATE KEY UPDATE code = code",
		typesTable,
	)
	loadTypes := fmt.Sprintf("SELECT code, type_name FROM %s", typesTable)
	insertError := fmt.Sprintf(
		"INSERT INTO %s (msg_id, tenant_id, part, status_code, error, day_ts, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		errorsTable,
	)
	detectTenants := fmt.Sprintf(
		"SELECT DISTINCT tenant_id FROM %s WHERE part = ? AND status_code = ? ORDER BY tenant_id",
		table,
	)

	return queries{
		selectEligible: selectEligible,
		markRented:     markRented,
		finishOne:      finishOne,
		postponeOne:    postponeOne,
		requeueOne:     requeueOne,
		extendLease:    extendLease,
		insertType:     insertType,
		loadTypes:      loadTypes,
		insertError:    insertError,
		detectTenants:  detectTenants,
	}
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}

	buf := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '?')
	}

	return string(buf)
}

func buildInsertQuery(table string, rows int) string {
	const cols = "(id, payload_id, tenant_id, part, type_code, payload, status_code, created_at, created_ts)"
	const row = "(?, ?, ?, ?, ?, ?, ?, ?, ?)"

	buf := make([]byte, 0, len(table)+len(cols)+rows*(len(row)+1)+32)
	buf = append(buf, "INSERT INTO "...)
	buf = append(buf, table...)
	buf = append(buf, ' ')
	buf = append(buf, cols...)
	buf = append(buf, " VALUES "...)
	for i := 0; i < rows; i++ {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, row...)
	}

	return string(buf)
}
