/*
Package entities exposes a uniform, typed CRUD contract over every record kind
in the catalogue: list, get, create, update and delete, mechanically derived
from a per-kind descriptor rather than hand-written route sets.

Cross-entity invariants (cascading deletes, denormalised snapshot sync, like
counters) are deliberately layered on top by callers; the uniform contract
itself knows nothing about them.
*/
package entities

import (
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/silvestri/maglia/pkg/events"
	"github.com/silvestri/maglia/pkg/ntime"
	"github.com/silvestri/maglia/pkg/rest"
	"github.com/sirupsen/logrus"
)

// Account roles, in widening order of permissions.
const (
	RolePending   = "pending"
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// Actor identifies the authenticated caller of an operation.
type Actor struct {
	Id    string
	Email string
	Name  string
	Role  string
}

// Moderates reports whether the actor may alter other users' collectibles and comments.
func (a Actor) Moderates() bool {
	return a.Role == RoleModerator || a.Role == RoleAdmin
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Op tags the five uniform operations for authorisation hooks.
type Op int

const (
	OpList Op = iota
	OpGet
	OpCreate
	OpUpdate
	OpDelete
)

// Record is the contract every registered entity kind fulfils.
// Implementations are pointer types, so hooks and patch merging can mutate them.
type Record interface {
	EntityID() string
	SetEntityID(id string)

	// Touch refreshes the record's timestamps; creating distinguishes inserts from updates.
	Touch(now ntime.NTime, creating bool)

	Validate() error
}

// Scanner abstracts over sql.Row and sql.Rows for the per-kind scan functions.
type Scanner interface {
	Scan(dest ...any) error
}

// Kind describes one entity kind at compile time: its storage mapping and
// the optional hooks that layer kind-specific behaviour onto the uniform contract.
type Kind[T Record] struct {
	// Name is the kind tag used in routes and broadcast events.
	Name string

	Table string

	// Columns lists the table's columns except id, in the order Scan and Args use them.
	Columns []string

	// New returns an addressable zero record.
	New func() T

	// Scan reads a full row, id first, then Columns in order.
	Scan func(row Scanner) (T, error)

	// Args yields the record's column values, aligned with Columns.
	Args func(record T) []any

	// Prepare runs before insertion, within the transaction: derived fields,
	// denormalised snapshots and existence probes belong here.
	Prepare func(tx *sql.Tx, actor Actor, record T) error

	// Authorize vets mutations; nil allows any authenticated actor.
	Authorize func(actor Actor, op Op, record T) error

	// Readable filters list and get results; nil exposes every record.
	Readable func(actor Actor, record T) bool

	// Redact strips fields the actor may not see, i.e. purchase details; nil keeps the record whole.
	Redact func(actor Actor, record T) T
}

// Registry holds the registered kinds and the dependencies their stores share.
type Registry struct {
	db     *sql.DB
	bus    events.Bus
	logger logrus.FieldLogger
	kinds  map[string]operations
}

func NewRegistry(db *sql.DB, bus events.Bus, logger logrus.FieldLogger) *Registry {
	return &Registry{
		db:     db,
		bus:    bus,
		logger: logger,
		kinds:  make(map[string]operations),
	}
}

// Register derives the five uniform operations for the given kind.
// Methods can't introduce type parameters, hence the package level function.
func Register[T Record](registry *Registry, kind Kind[T]) {
	registry.kinds[kind.Name] = &store[T]{
		kind:        kind,
		db:          registry.db,
		bus:         registry.bus,
		selectQuery: "SELECT id, " + strings.Join(kind.Columns, ", ") + " FROM " + kind.Table,
		insertQuery: insertQuery(kind.Table, kind.Columns),
		updateQuery: updateQuery(kind.Table, kind.Columns),
	}
}

func insertQuery(table string, columns []string) string {
	return "INSERT INTO " + table + " (id, " + strings.Join(columns, ", ") + ") VALUES (?" +
		strings.Repeat(", ?", len(columns)) + ")"
}

func updateQuery(table string, columns []string) string {
	var assignments = make([]string, len(columns))
	for i, column := range columns {
		assignments[i] = column + " = ?"
	}
	return "UPDATE " + table + " SET " + strings.Join(assignments, ", ") + " WHERE id = ?"
}

// operations is the type erased face of a kind's store, dispatched by the HTTP handlers.
type operations interface {
	list(actor Actor) (any, error)
	get(actor Actor, id string) (any, error)
	create(actor Actor, payload []byte) (any, error)
	update(actor Actor, id string, payload []byte) (any, error)
	remove(actor Actor, id string) error
}

// store implements the uniform contract once; it's instantiated per registered kind.
type store[T Record] struct {
	kind        Kind[T]
	db          *sql.DB
	bus         events.Bus
	selectQuery string
	insertQuery string
	updateQuery string
}

type rowQuerier interface {
	QueryRow(query string, args ...any) *sql.Row
}

func (s *store[T]) list(actor Actor) (any, error) {
	rows, err := s.db.Query(s.selectQuery)
	if err != nil {
		return nil, storageError(err)
	}
	defer closeRows(rows)

	// initialise an empty slice to avoid null serialisation
	var records = make([]T, 0)
	for rows.Next() {
		record, err := s.kind.Scan(rows)
		if err != nil {
			return nil, storageError(err)
		}
		if s.readable(actor, record) {
			records = append(records, s.redact(actor, record))
		}
	}
	return records, storageError(rows.Err())
}

func (s *store[T]) get(actor Actor, id string) (any, error) {
	record, err := s.fetch(s.db, id)
	if err != nil {
		return nil, err
	}
	// hidden records are reported as missing to deny information about their existence
	if !s.readable(actor, record) {
		return nil, ErrNotFound
	}
	if err = s.authorize(actor, OpGet, record); err != nil {
		return nil, err
	}
	return s.redact(actor, record), nil
}

func (s *store[T]) create(actor Actor, payload []byte) (any, error) {
	var record = s.kind.New()
	if err := json.Unmarshal(payload, record); err != nil {
		return nil, validationError(err)
	}

	// identifiers are always server assigned
	record.SetEntityID(rest.MustGetNewUUID())
	record.Touch(ntime.Now(), true)

	if err := s.authorize(actor, OpCreate, record); err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, storageError(err)
	}
	defer rollback(tx)

	if s.kind.Prepare != nil {
		if err = s.kind.Prepare(tx, actor, record); err != nil {
			return nil, err
		}
	}

	// validate after preparation, once derived fields are in place
	if err = record.Validate(); err != nil {
		return nil, validationError(err)
	}

	var args = append([]any{record.EntityID()}, s.kind.Args(record)...)
	if _, err = tx.Exec(s.insertQuery, args...); err != nil {
		return nil, storageError(err)
	}
	if err = tx.Commit(); err != nil {
		return nil, storageError(err)
	}

	s.publish(record)
	return s.redact(actor, record), nil
}

func (s *store[T]) update(actor Actor, id string, payload []byte) (any, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, storageError(err)
	}
	defer rollback(tx)

	record, err := s.fetch(tx, id)
	if err != nil {
		return nil, err
	}
	if !s.readable(actor, record) {
		return nil, ErrNotFound
	}
	if err = s.authorize(actor, OpUpdate, record); err != nil {
		return nil, err
	}

	// merge the partial payload onto the stored record, field-wise, last write wins;
	// there's no concurrency token, so two overlapping updates can clobber each other
	if err = json.Unmarshal(payload, record); err != nil {
		return nil, validationError(err)
	}

	// identifiers are immutable regardless of the payload's contents
	record.SetEntityID(id)
	record.Touch(ntime.Now(), false)

	if err = record.Validate(); err != nil {
		return nil, validationError(err)
	}

	result, err := tx.Exec(s.updateQuery, append(s.kind.Args(record), id)...)
	if err != nil {
		return nil, storageError(err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return nil, storageError(err)
	} else if affected == 0 {
		return nil, ErrNotFound
	}
	if err = tx.Commit(); err != nil {
		return nil, storageError(err)
	}

	s.publish(record)
	return s.redact(actor, record), nil
}

func (s *store[T]) remove(actor Actor, id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return storageError(err)
	}
	defer rollback(tx)

	record, err := s.fetch(tx, id)
	if err != nil {
		return err
	}
	if !s.readable(actor, record) {
		return ErrNotFound
	}
	if err = s.authorize(actor, OpDelete, record); err != nil {
		return err
	}

	result, err := tx.Exec("DELETE FROM "+s.kind.Table+" WHERE id = ?", id)
	if err != nil {
		return storageError(err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return storageError(err)
	} else if affected == 0 {
		return ErrNotFound
	}
	if err = tx.Commit(); err != nil {
		return storageError(err)
	}

	s.bus.PublishDelete(s.kind.Name, id)
	return nil
}

func (s *store[T]) fetch(querier rowQuerier, id string) (record T, err error) {
	record, err = s.kind.Scan(querier.QueryRow(s.selectQuery+" WHERE id = ?", id))
	if err != nil {
		return record, storageError(err)
	}
	return record, nil
}

// publish broadcasts the committed mutation; the payload carries the public
// view of the record, since every connected listener receives it.
func (s *store[T]) publish(record T) {
	s.bus.PublishUpdate(s.kind.Name, record.EntityID(), s.redact(Actor{}, record))
}

func (s *store[T]) readable(actor Actor, record T) bool {
	return s.kind.Readable == nil || s.kind.Readable(actor, record)
}

func (s *store[T]) redact(actor Actor, record T) T {
	if s.kind.Redact == nil {
		return record
	}
	return s.kind.Redact(actor, record)
}

func (s *store[T]) authorize(actor Actor, op Op, record T) error {
	if s.kind.Authorize == nil {
		return nil
	}
	return s.kind.Authorize(actor, op, record)
}

func closeRows(rows *sql.Rows) {
	_ = rows.Close()
}

// rollback is safe to defer past a commit; it degrades to a no-op.
func rollback(tx *sql.Tx) {
	_ = tx.Rollback()
}
