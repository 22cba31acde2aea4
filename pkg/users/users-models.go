package users

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/silvestri/maglia/pkg/entities"
	"github.com/silvestri/maglia/pkg/ntime"
)

// Validation rule sets shared with the auth package's DTOs.
var (
	NameRules     = []validation.Rule{validation.Required, validation.Length(2, 50)}
	EmailRules    = []validation.Rule{validation.Required, is.Email}
	PasswordRules = []validation.Rule{validation.Required, validation.Length(8, 72)}
)

var roles = []interface{}{entities.RolePending, entities.RoleUser, entities.RoleModerator, entities.RoleAdmin}

// Account is a fully approved member of the community.
// The password column holds a bcrypt hash and is never serialised.
type Account struct {
	Id               string
	Email            string
	Name             string
	Password         string `json:"-"`
	Role             string
	Blocked          bool
	AcceptsMessages  bool
	HiddenCategories entities.StringList
	Extra            entities.JSONMap
	Created          ntime.NTime
	Updated          ntime.NTime
}

func (a *Account) EntityID() string      { return a.Id }
func (a *Account) SetEntityID(id string) { a.Id = id }

func (a *Account) Touch(now ntime.NTime, creating bool) {
	if creating {
		a.Created = now
	}
	a.Updated = now
}

func (a *Account) Validate() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.Email, EmailRules...),
		validation.Field(&a.Name, NameRules...),
		validation.Field(&a.Role, validation.Required, validation.In(roles...)),
	)
}

// PendingRegistration stages a registrant's profile until an admin approves or rejects it.
type PendingRegistration struct {
	Id       string
	Email    string
	Name     string
	Password string `json:"-"`
	Status   string
	Extra    entities.JSONMap
	Created  ntime.NTime
}

func (p *PendingRegistration) EntityID() string      { return p.Id }
func (p *PendingRegistration) SetEntityID(id string) { p.Id = id }

func (p *PendingRegistration) Touch(now ntime.NTime, creating bool) {
	if creating {
		p.Created = now
	}
}

func (p *PendingRegistration) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Email, EmailRules...),
		validation.Field(&p.Name, NameRules...),
	)
}
