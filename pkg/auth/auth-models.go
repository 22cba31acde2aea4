package auth

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/silvestri/maglia/pkg/entities"
	"github.com/silvestri/maglia/pkg/users"
)

type RegistrationData struct {
	Email    string
	Name     string
	Password string
	Extra    entities.JSONMap
}

func (data RegistrationData) Validate() error {
	return validation.ValidateStruct(&data,
		validation.Field(&data.Email, users.EmailRules...),
		validation.Field(&data.Name, users.NameRules...),
		validation.Field(&data.Password, users.PasswordRules...),
	)
}

type LoginData struct {
	Email    string
	Password string
}

func (data LoginData) Validate() error {
	return validation.ValidateStruct(&data,
		validation.Field(&data.Email, users.EmailRules...),
		validation.Field(&data.Password, validation.Required),
	)
}

// ApprovalData optionally assigns a role other than the default `user` on approval.
type ApprovalData struct {
	Role string
}

var assignableRoles = []interface{}{entities.RoleUser, entities.RoleModerator, entities.RoleAdmin}

func (data ApprovalData) Validate() error {
	return validation.ValidateStruct(&data,
		validation.Field(&data.Role, validation.In(assignableRoles...)),
	)
}

type ForgotPasswordData struct {
	Email string
}

func (data ForgotPasswordData) Validate() error {
	return validation.ValidateStruct(&data, validation.Field(&data.Email, users.EmailRules...))
}

type ResetPasswordData struct {
	Token    string
	Password string
}

func (data ResetPasswordData) Validate() error {
	return validation.ValidateStruct(&data,
		validation.Field(&data.Token, validation.Required),
		validation.Field(&data.Password, users.PasswordRules...),
	)
}

type ChangePasswordData struct {
	OldPassword string
	NewPassword string
}

func (data ChangePasswordData) Validate() error {
	return validation.ValidateStruct(&data,
		validation.Field(&data.OldPassword, validation.Required),
		validation.Field(&data.NewPassword, users.PasswordRules...),
	)
}

// ProfileData carries a partial profile edit; nil fields are left untouched.
type ProfileData struct {
	Name             *string
	AcceptsMessages  *bool
	HiddenCategories *entities.StringList
	Extra            *entities.JSONMap
}

func (data ProfileData) Validate() error {
	return validation.ValidateStruct(&data,
		validation.Field(&data.Name, validation.NilOrNotEmpty, validation.Length(2, 50)),
	)
}

// Admin moderation actions; update applies the profile fields and the optional role.
const (
	ActionUpdate  = "update"
	ActionBlock   = "block"
	ActionUnblock = "unblock"
	ActionDelete  = "delete"
)

var manageActions = []interface{}{ActionUpdate, ActionBlock, ActionUnblock, ActionDelete}

type ManageUserData struct {
	UserId  string
	Action  string
	Role    string
	Profile ProfileData
}

func (data ManageUserData) Validate() error {
	return validation.ValidateStruct(&data,
		validation.Field(&data.UserId, validation.Required),
		validation.Field(&data.Action, validation.Required, validation.In(manageActions...)),
		validation.Field(&data.Role, validation.In(assignableRoles...)),
	)
}
