package sqlite

import (
	"database/sql"
	"errors"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type Storage struct {
	Connection *sql.DB
	logger     *logrus.Logger
}

// New opens the database at the given path, creating and initialising it on
// first run. Reopening an existing file verifies its schema against the
// expected one and fails on mismatch rather than attempting migrations.
func New(logger *logrus.Logger, path string) (storage Storage, err error) {

	logger.Println("initialising SQLite DB")
	storage.logger = logger

	// the database already exists, check for its contents
	if _, err := os.Stat(path); err == nil {
		storage.Connection, err = getValidConnection(path)
		if err != nil {
			logger.WithError(err).Error("error while verifying existing database")
			return storage, err
		}
	} else {
		// create the file and initialise the schema; mind the explicit need for foreign keys constraints
		storage.Connection, err = sql.Open("sqlite3", getConnectionString(path))
		if err != nil {
			logger.WithError(err).Error("error while creating new database")
			return storage, err
		}
		if _, err = storage.Connection.Exec(schema); err != nil {
			logger.WithError(err).Error("error while building database schema")
			return storage, err
		}
	}

	// opening the DB will fail silently when the package is compiled without CGO_ENABLED
	if err = storage.Connection.Ping(); err != nil {
		return storage, err
	}
	return storage, err
}

func (storage Storage) Close() {
	storage.logger.Debug("database stopping")
	if err := storage.Connection.Close(); err != nil {
		storage.logger.WithError(err).Warning("error while closing database connection")
	}
}

func getValidConnection(path string) (connection *sql.DB, err error) {
	connection, err = sql.Open("sqlite3", getConnectionString(path))
	if err != nil {
		return nil, err
	}

	// build the expected schema in memory
	desired, err := sql.Open("sqlite3", getConnectionString(":memory:"))
	if err != nil {
		return nil, err
	}
	if _, err = desired.Exec(schema); err != nil {
		return nil, err
	}

	// compare the defined schema with the actual one found in the existing database
	desiredTables, err := mapSchema(desired)
	if err != nil {
		return nil, err
	}
	actualTables, err := mapSchema(connection)
	if err != nil {
		return nil, err
	}

	if sameSchemaMap(desiredTables, actualTables) {
		return connection, nil
	}
	return nil, errors.New("schema mismatch")
}

func mapSchema(connection *sql.DB) (tables map[string]string, err error) {

	rows, err := connection.Query(`SELECT name, sql FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return nil, err
	}

	// in memory and on file sqlite schemas may differ in whitespace depending on the platform
	var replacer = strings.NewReplacer(
		"\n\t\t", "",
		"\r\n\t\t", "",
		"\r\n", "",
		"\n", "",
	)

	tables = make(map[string]string)
	var name, sqlCode string
	for rows.Next() {
		if err = rows.Scan(&name, &sqlCode); err != nil {
			return tables, err
		}
		tables[name] = replacer.Replace(sqlCode)
	}

	if err = rows.Err(); err != nil {
		return tables, err
	}

	if err = rows.Close(); err != nil {
		return tables, err
	}

	return tables, err
}

func sameSchemaMap(first, second map[string]string) bool {
	// the second map might be larger than the first, hence the additional length check
	if len(first) != len(second) {
		return false
	}
	for firstKey, firstValue := range first {
		if secondValue, found := second[firstKey]; !found || secondValue != firstValue {
			return false
		}
	}
	return true
}

// getConnectionString provides a configuration string that enables foreign keys constraints
func getConnectionString(path string) string {
	return path + "?_fk=on"
}
