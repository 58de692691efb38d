package mysql

import "fmt"

const messagesSchemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id BINARY(16) NOT NULL,
	payload_id VARCHAR(128) NOT NULL,
	tenant_id BIGINT NOT NULL DEFAULT 0,
	part VARCHAR(128) NOT NULL,
	type_code BIGINT NOT NULL,
	payload LONGBLOB NOT NULL,
	status_code INT NOT NULL DEFAULT 0,
	attempt_count INT NOT NULL DEFAULT 0,
	lock_owner VARCHAR(128) NULL,
	lock_expires_at TIMESTAMP(6) NULL,
	process_after TIMESTAMP(6) NULL,
	last_error VARCHAR(1024) NULL,
	created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	delivered_at TIMESTAMP(6) NULL,
	created_ts BIGINT NOT NULL,
	PRIMARY KEY (id, created_ts),
	INDEX idx_rent (part, tenant_id, status_code, created_ts)
)%s;`

const typesSchemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	code BIGINT NOT NULL,
	type_name VARCHAR(512) NOT NULL,
	created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	PRIMARY KEY (code)
);`

const errorsSchemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id BIGINT NOT NULL AUTO_INCREMENT,
	msg_id BINARY(16) NOT NULL,
	tenant_id BIGINT NOT NULL DEFAULT 0,
	part VARCHAR(128) NOT NULL,
	status_code INT NOT NULL,
	error VARCHAR(1024) NULL,
	day_ts BIGINT NOT NULL,
	created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	PRIMARY KEY (id, day_ts),
	INDEX idx_tenant_day (tenant_id, day_ts)
)%s;`

const (
	partitionClausePrefix = "\nPARTITION BY RANGE (created_ts) ("
	errorsPartitionPrefix = "\nPARTITION BY RANGE (day_ts) ("
	partitionClauseSuffix = "\n)"
)

// Partition defines a range partition over a unix-seconds column.
type Partition struct {
	Name     string
	LessThan string
}

// MessagesSchema returns the messages table schema without partitioning.
func MessagesSchema(table string) (string, error) {
	return buildSchema(messagesSchemaTemplate, table, "")
}

// PartitionedMessagesSchema returns the messages table schema with RANGE
// partitions on created_ts.
func PartitionedMessagesSchema(table string, partitions []Partition) (string, error) {
	clause, err := partitionClause(partitionClausePrefix, partitions)
	if err != nil {
		return "", err
	}

	return buildSchema(messagesSchemaTemplate, table, clause)
}

// TypesSchema returns the type table schema.
func TypesSchema(table string) (string, error) {
	name, err := sanitizeTableName(table)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(typesSchemaTemplate, name), nil
}

// ErrorsSchema returns the error log schema without partitioning.
func ErrorsSchema(table string) (string, error) {
	return buildSchema(errorsSchemaTemplate, table, "")
}

// PartitionedErrorsSchema returns the error log schema with RANGE
// partitions on day_ts. The error log is always partitioned daily.
func PartitionedErrorsSchema(table string, partitions []Partition) (string, error) {
	clause, err := partitionClause(errorsPartitionPrefix, partitions)
	if err != nil {
		return "", err
	}

	return buildSchema(errorsSchemaTemplate, table, clause)
}

func partitionClause(prefix string, partitions []Partition) (string, error) {
	if len(partitions) == 0 {
		return "", ErrPartitionsRequired
	}

	clause := prefix
	for i, part := range partitions {
		if part.Name == "" || part.LessThan == "" {
			return "", ErrInvalidPartition
		}
		if i > 0 {
			clause += ","
		}
		clause += fmt.Sprintf("\n\tPARTITION %s VALUES LESS THAN (%s)", part.Name, part.LessThan)
	}
	clause += partitionClauseSuffix

	return clause, nil
}

func buildSchema(template, table, clause string) (string, error) {
	name, err := sanitizeTableName(table)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(template, name, clause), nil
}
