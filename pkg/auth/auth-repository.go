package auth

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"github.com/silvestri/maglia/pkg/entities"
	"github.com/silvestri/maglia/pkg/events"
	"github.com/silvestri/maglia/pkg/ntime"
	"github.com/silvestri/maglia/pkg/rest"
	"github.com/silvestri/maglia/pkg/users"
)

const accountColumns = "id, email, name, password, role, blocked, accepts_messages, hidden_categories, extra, created, updated"

// ErrBadCredentials deliberately doesn't distinguish a missing account from a
// wrong password or token, to deny user enumeration.
var ErrBadCredentials = errors.New("invalid credentials")

// Repository manages accounts and the registration approval gate. Mutations
// announce themselves on the bus after commit, never before and never on failure.
type Repository struct {
	Connection *sql.DB
	bus        events.Bus
}

func NewRepository(connection *sql.DB, bus events.Bus) *Repository {
	return &Repository{connection, bus}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*users.Account, error) {
	var a users.Account
	if err := row.Scan(&a.Id, &a.Email, &a.Name, &a.Password, &a.Role, &a.Blocked,
		&a.AcceptsMessages, &a.HiddenCategories, &a.Extra, &a.Created, &a.Updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entities.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (ar *Repository) GetAccountById(id string) (*users.Account, error) {
	return scanAccount(ar.Connection.QueryRow(
		"SELECT "+accountColumns+" FROM users WHERE id = ?", id))
}

func (ar *Repository) GetAccountByEmail(email string) (*users.Account, error) {
	return scanAccount(ar.Connection.QueryRow(
		"SELECT "+accountColumns+" FROM users WHERE email = ?", email))
}

// EmailTaken probes both the accounts and the staging table, so a registrant
// can't shadow an existing member or a pending applicant.
func (ar *Repository) EmailTaken(email string) bool {
	var taken = false
	var err = ar.Connection.QueryRow(`
		SELECT EXISTS (
			SELECT TRUE FROM users WHERE email = ?
			UNION SELECT TRUE FROM pending_users WHERE email = ?
		)`, email, email).Scan(&taken)
	return err != nil || taken
}

// AddPending stages a registration; the account comes into being only on approval.
func (ar *Repository) AddPending(data RegistrationData, passwordHash string) (*users.PendingRegistration, error) {
	if ar.EmailTaken(data.Email) {
		return nil, entities.ErrConflict
	}

	var pending = users.PendingRegistration{
		Id:       rest.MustGetNewUUID(),
		Email:    data.Email,
		Name:     data.Name,
		Password: passwordHash,
		Status:   entities.RolePending,
		Extra:    data.Extra,
		Created:  ntime.Now(),
	}

	_, err := ar.Connection.Exec(`
		INSERT INTO pending_users (id, email, name, password, status, extra, created)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pending.Id, pending.Email, pending.Name, pending.Password, pending.Status, pending.Extra, pending.Created)
	if err != nil {
		// the existence probe doesn't lock anything; a concurrent registration can still win the insert
		if isUniqueViolation(err) {
			return nil, entities.ErrConflict
		}
		return nil, fmt.Errorf("couldn't stage registration for %q: %w", data.Email, err)
	}

	ar.bus.PublishUpdate("PendingUser", pending.Id, &pending)
	return &pending, nil
}

func (ar *Repository) GetPending(id string) (*users.PendingRegistration, error) {
	var p users.PendingRegistration
	if err := ar.Connection.QueryRow(`
		SELECT id, email, name, password, status, extra, created FROM pending_users WHERE id = ?`, id).
		Scan(&p.Id, &p.Email, &p.Name, &p.Password, &p.Status, &p.Extra, &p.Created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entities.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (ar *Repository) ListPending() ([]*users.PendingRegistration, error) {
	rows, err := ar.Connection.Query(`
		SELECT id, email, name, password, status, extra, created FROM pending_users ORDER BY created`)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var staged = make([]*users.PendingRegistration, 0)
	for rows.Next() {
		var p users.PendingRegistration
		if err = rows.Scan(&p.Id, &p.Email, &p.Name, &p.Password, &p.Status, &p.Extra, &p.Created); err != nil {
			return staged, err
		}
		staged = append(staged, &p)
	}
	return staged, rows.Err()
}

// Approve promotes a staged registration into a full account and removes the
// staging record, in one transaction.
func (ar *Repository) Approve(pendingId, role string) (*users.Account, error) {
	if role == "" {
		role = entities.RoleUser
	}

	tx, err := ar.Connection.Begin()
	if err != nil {
		return nil, err
	}
	defer rollback(tx)

	var p users.PendingRegistration
	if err = tx.QueryRow(`
		SELECT id, email, name, password, extra FROM pending_users WHERE id = ?`, pendingId).
		Scan(&p.Id, &p.Email, &p.Name, &p.Password, &p.Extra); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entities.ErrNotFound
		}
		return nil, err
	}

	var now = ntime.Now()
	var account = users.Account{
		Id:              rest.MustGetNewUUID(),
		Email:           p.Email,
		Name:            p.Name,
		Password:        p.Password,
		Role:            role,
		AcceptsMessages: true,
		Extra:           p.Extra,
		Created:         now,
		Updated:         now,
	}

	if _, err = tx.Exec(`
		INSERT INTO users (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.Id, account.Email, account.Name, account.Password, account.Role, account.Blocked,
		account.AcceptsMessages, account.HiddenCategories, account.Extra, account.Created, account.Updated); err != nil {
		if isUniqueViolation(err) {
			return nil, entities.ErrConflict
		}
		return nil, err
	}

	if _, err = tx.Exec("DELETE FROM pending_users WHERE id = ?", pendingId); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}

	ar.bus.PublishUpdate("User", account.Id, &account)
	ar.bus.PublishDelete("PendingUser", pendingId)
	return &account, nil
}

// Reject discards a staged registration without creating an account.
func (ar *Repository) Reject(pendingId string) error {
	result, err := ar.Connection.Exec("DELETE FROM pending_users WHERE id = ?", pendingId)
	if err != nil {
		return err
	}
	if deleted, err := result.RowsAffected(); err != nil {
		return err
	} else if deleted == 0 {
		return entities.ErrNotFound
	}

	ar.bus.PublishDelete("PendingUser", pendingId)
	return nil
}

// UpdateProfile applies a partial profile edit. A display name change also
// refreshes the denormalised snapshots on comments and owned collectibles,
// within the same transaction.
func (ar *Repository) UpdateProfile(accountId string, data ProfileData) (*users.Account, error) {
	tx, err := ar.Connection.Begin()
	if err != nil {
		return nil, err
	}
	defer rollback(tx)

	account, err := scanAccount(tx.QueryRow("SELECT "+accountColumns+" FROM users WHERE id = ?", accountId))
	if err != nil {
		return nil, err
	}

	var renamed = data.Name != nil && *data.Name != account.Name
	if data.Name != nil {
		account.Name = *data.Name
	}
	if data.AcceptsMessages != nil {
		account.AcceptsMessages = *data.AcceptsMessages
	}
	if data.HiddenCategories != nil {
		account.HiddenCategories = *data.HiddenCategories
	}
	if data.Extra != nil {
		account.Extra = *data.Extra
	}
	account.Updated = ntime.Now()

	if _, err = tx.Exec(`
		UPDATE users SET name = ?, accepts_messages = ?, hidden_categories = ?, extra = ?, updated = ?
		WHERE id = ?`,
		account.Name, account.AcceptsMessages, account.HiddenCategories, account.Extra, account.Updated,
		accountId); err != nil {
		return nil, err
	}

	if renamed {
		if err = resyncDisplayName(tx, account.Email, account.Name); err != nil {
			return nil, err
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}

	ar.bus.PublishUpdate("User", account.Id, account)
	return account, nil
}

// resyncDisplayName batch-updates the write-time name snapshots scattered
// across comments and owned collectibles.
func resyncDisplayName(tx *sql.Tx, email, name string) error {
	for _, statement := range []string{
		"UPDATE comments SET author_name = ? WHERE author_email = ?",
		"UPDATE jerseys SET owner_name = ? WHERE owner_email = ?",
		"UPDATE collection_items SET owner_name = ? WHERE owner_email = ?",
	} {
		if _, err := tx.Exec(statement, name, email); err != nil {
			return err
		}
	}
	return nil
}

// SetBlocked toggles the account's blocked flag; blocked accounts fail authentication.
func (ar *Repository) SetBlocked(accountId string, blocked bool) (*users.Account, error) {
	result, err := ar.Connection.Exec(
		"UPDATE users SET blocked = ?, updated = ? WHERE id = ?", blocked, ntime.Now(), accountId)
	if err != nil {
		return nil, err
	}
	if affected, err := result.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, entities.ErrNotFound
	}

	account, err := ar.GetAccountById(accountId)
	if err != nil {
		return nil, err
	}
	ar.bus.PublishUpdate("User", account.Id, account)
	return account, nil
}

// SetRole assigns a different role to an existing account.
func (ar *Repository) SetRole(accountId, role string) (*users.Account, error) {
	result, err := ar.Connection.Exec(
		"UPDATE users SET role = ?, updated = ? WHERE id = ?", role, ntime.Now(), accountId)
	if err != nil {
		return nil, err
	}
	if affected, err := result.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, entities.ErrNotFound
	}

	account, err := ar.GetAccountById(accountId)
	if err != nil {
		return nil, err
	}
	ar.bus.PublishUpdate("User", account.Id, account)
	return account, nil
}

// ChangePassword verifies the current password before storing the new hash.
func (ar *Repository) ChangePassword(accountId string, data ChangePasswordData) error {
	account, err := ar.GetAccountById(accountId)
	if err != nil {
		return err
	}
	if !CheckPasswordHash(data.OldPassword, account.Password) {
		return ErrBadCredentials
	}

	hash, err := HashPassword(data.NewPassword)
	if err != nil {
		return err
	}
	_, err = ar.Connection.Exec(
		"UPDATE users SET password = ?, updated = ? WHERE id = ?", hash, ntime.Now(), accountId)
	return err
}

// CreateResetToken stores a single-use recovery token for the account, if one
// exists. A missing account yields no error, to deny address enumeration.
func (ar *Repository) CreateResetToken(email string) (string, error) {
	token, err := GenerateResetToken()
	if err != nil {
		return "", err
	}

	result, err := ar.Connection.Exec("UPDATE users SET reset_token = ? WHERE email = ?", token, email)
	if err != nil {
		return "", err
	}
	if affected, err := result.RowsAffected(); err != nil || affected == 0 {
		return "", err
	}
	return token, nil
}

// ResetPassword redeems a recovery token; the token is cleared on use.
func (ar *Repository) ResetPassword(data ResetPasswordData) error {
	hash, err := HashPassword(data.Password)
	if err != nil {
		return err
	}

	result, err := ar.Connection.Exec(`
		UPDATE users SET password = ?, reset_token = NULL, updated = ?
		WHERE reset_token = ?`, hash, ntime.Now(), data.Token)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err != nil {
		return err
	} else if affected == 0 {
		return ErrBadCredentials
	}
	return nil
}

// DeleteAccountCascade removes the account along with every record it owns,
// authored or received: collectibles and their likes and comments, the
// account's own likes and comments, and its conversations. One transaction,
// so a failure midway leaves no orphans; tombstones broadcast after commit.
func (ar *Repository) DeleteAccountCascade(accountId string) error {
	tx, err := ar.Connection.Begin()
	if err != nil {
		return err
	}
	defer rollback(tx)

	account, err := scanAccount(tx.QueryRow("SELECT "+accountColumns+" FROM users WHERE id = ?", accountId))
	if err != nil {
		return err
	}

	var email = account.Email
	var ownedCollectibles = `
		SELECT id FROM jerseys WHERE owner_email = ?
		UNION SELECT id FROM collection_items WHERE owner_email = ?`

	// gather ids first, so tombstones can be published once the deletes commit
	var tombstones = []struct {
		kind  string
		query string
		args  []any
	}{
		{"JerseyLike", "SELECT id FROM jersey_likes WHERE user_email = ? OR collectible_id IN (" + ownedCollectibles + ")", []any{email, email, email}},
		{"Comment", "SELECT id FROM comments WHERE author_email = ? OR collectible_id IN (" + ownedCollectibles + ")", []any{email, email, email}},
		{"Message", "SELECT id FROM messages WHERE sender_email = ? OR receiver_email = ?", []any{email, email}},
		{"Jersey", "SELECT id FROM jerseys WHERE owner_email = ?", []any{email}},
		{"CollectionItem", "SELECT id FROM collection_items WHERE owner_email = ?", []any{email}},
	}

	var removed = make(map[string][]string, len(tombstones)+1)
	for _, t := range tombstones {
		if removed[t.kind], err = collectIds(tx, t.query, t.args...); err != nil {
			return err
		}
	}

	for _, statement := range []struct {
		query string
		args  []any
	}{
		{"DELETE FROM jersey_likes WHERE user_email = ? OR collectible_id IN (" + ownedCollectibles + ")", []any{email, email, email}},
		{"DELETE FROM comments WHERE author_email = ? OR collectible_id IN (" + ownedCollectibles + ")", []any{email, email, email}},
		{"DELETE FROM messages WHERE sender_email = ? OR receiver_email = ?", []any{email, email}},
		{"DELETE FROM jerseys WHERE owner_email = ?", []any{email}},
		{"DELETE FROM collection_items WHERE owner_email = ?", []any{email}},
		{"DELETE FROM users WHERE id = ?", []any{accountId}},
	} {
		if _, err = tx.Exec(statement.query, statement.args...); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	for kind, ids := range removed {
		for _, id := range ids {
			ar.bus.PublishDelete(kind, id)
		}
	}
	ar.bus.PublishDelete("User", accountId)
	return nil
}

// EnsureAdmin seeds the configured administrator on a fresh database, so the
// approval gate has someone to operate it.
func (ar *Repository) EnsureAdmin(email, passwordHash string) error {
	var exists = false
	if err := ar.Connection.QueryRow(
		"SELECT EXISTS (SELECT TRUE FROM users WHERE role = ?)", entities.RoleAdmin).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return nil
	}

	var now = ntime.Now()
	_, err := ar.Connection.Exec(`
		INSERT INTO users (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rest.MustGetNewUUID(), email, "Administrator", passwordHash, entities.RoleAdmin,
		false, false, entities.StringList{}, entities.JSONMap{}, now, now)
	return err
}

func collectIds(tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var ids = make([]string, 0)
	var id string
	for rows.Next() {
		if err = rows.Scan(&id); err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func closeRows(rows *sql.Rows) {
	_ = rows.Close()
}

func rollback(tx *sql.Tx) {
	_ = tx.Rollback()
}
