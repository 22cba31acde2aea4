package users

import (
	"database/sql"

	"github.com/silvestri/maglia/pkg/entities"
)

// AccountKind maps accounts onto the uniform contract. Mutations are the
// admins' preserve; profile edits flow through the auth routes instead.
func AccountKind() entities.Kind[*Account] {
	return entities.Kind[*Account]{
		Name:  "User",
		Table: "users",
		Columns: []string{
			"email", "name", "password", "role", "blocked", "accepts_messages",
			"hidden_categories", "extra", "created", "updated",
		},
		New: func() *Account { return &Account{} },
		Scan: func(row entities.Scanner) (*Account, error) {
			var a Account
			err := row.Scan(&a.Id, &a.Email, &a.Name, &a.Password, &a.Role, &a.Blocked,
				&a.AcceptsMessages, &a.HiddenCategories, &a.Extra, &a.Created, &a.Updated)
			return &a, err
		},
		Args: func(a *Account) []any {
			return []any{a.Email, a.Name, a.Password, a.Role, a.Blocked,
				a.AcceptsMessages, a.HiddenCategories, a.Extra, a.Created, a.Updated}
		},
		Prepare: func(tx *sql.Tx, actor entities.Actor, a *Account) error {
			if a.Role == "" {
				a.Role = entities.RoleUser
			}
			return nil
		},
		Authorize: func(actor entities.Actor, op entities.Op, a *Account) error {
			switch op {
			case entities.OpCreate, entities.OpUpdate, entities.OpDelete:
				// only admins may alter roles, block flags or remove accounts;
				// note the uniform delete doesn't cascade, unlike manage-user
				if !actor.IsAdmin() {
					return entities.ErrForbidden
				}
			}
			return nil
		},
	}
}

// PendingKind exposes staged registrations to the admin panel through the uniform contract.
func PendingKind() entities.Kind[*PendingRegistration] {
	return entities.Kind[*PendingRegistration]{
		Name:    "PendingUser",
		Table:   "pending_users",
		Columns: []string{"email", "name", "password", "status", "extra", "created"},
		New:     func() *PendingRegistration { return &PendingRegistration{} },
		Scan: func(row entities.Scanner) (*PendingRegistration, error) {
			var p PendingRegistration
			err := row.Scan(&p.Id, &p.Email, &p.Name, &p.Password, &p.Status, &p.Extra, &p.Created)
			return &p, err
		},
		Args: func(p *PendingRegistration) []any {
			return []any{p.Email, p.Name, p.Password, p.Status, p.Extra, p.Created}
		},
		Prepare: func(tx *sql.Tx, actor entities.Actor, p *PendingRegistration) error {
			if p.Status == "" {
				p.Status = entities.RolePending
			}
			return nil
		},
		Authorize: func(actor entities.Actor, op entities.Op, p *PendingRegistration) error {
			if !actor.IsAdmin() {
				return entities.ErrForbidden
			}
			return nil
		},
		Readable: func(actor entities.Actor, p *PendingRegistration) bool {
			return actor.IsAdmin()
		},
	}
}
