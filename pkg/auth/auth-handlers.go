package auth

import (
	"errors"
	"net/http"

	"github.com/silvestri/maglia/pkg/entities"
	JSON "github.com/silvestri/maglia/pkg/json-utilities"
	"github.com/silvestri/maglia/pkg/rest"
	"github.com/silvestri/maglia/pkg/users"
	"github.com/sirupsen/logrus"
)

// RegisterHandlers wires the credential and approval-gate routes.
// Middleware listed later wraps the earlier ones, so `Admin` precedes `authenticated`.
func RegisterHandlers(engine *rest.Engine, ar *Repository, tokens *Tokens, logger logrus.FieldLogger) {
	var authenticated = Authenticated(tokens, ar)

	engine.Post("/auth/register", register(ar))
	engine.Post("/auth/login", login(ar, tokens))
	engine.Post("/auth/forgot-password", forgotPassword(ar, logger))
	engine.Post("/auth/reset-password", resetPassword(ar))
	engine.Post("/auth/change-password", changePassword(ar), authenticated)

	engine.Get("/auth/me", getProfile(ar), authenticated)
	engine.Patch("/auth/me", updateProfile(ar), authenticated)

	engine.Get("/auth/pending", listPending(ar), Admin, authenticated)
	engine.Post("/auth/pending/:id/approve", approvePending(ar), Admin, authenticated)
	engine.Post("/auth/pending/:id/reject", rejectPending(ar), Admin, authenticated)
	engine.Post("/auth/manage-user", manageUser(ar), Admin, authenticated)
}

// register stages the applicant; an admin must approve before login becomes possible.
func register(ar *Repository) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		data, err := JSON.DecodeValidate[RegistrationData](request)
		if err != nil {
			JSON.ValidationError(writer, err)
			return
		}

		hash, err := HashPassword(data.Password)
		if err != nil {
			JSON.InternalServerError(writer, err)
			return
		}

		pending, err := ar.AddPending(data, hash)
		if err != nil {
			if errors.Is(err, entities.ErrConflict) {
				JSON.Conflict(writer, "email is already registered or awaiting approval")
				return
			}
			JSON.InternalServerError(writer, err)
			return
		}
		JSON.Created(writer, pending)
	}
}

func login(ar *Repository, tokens *Tokens) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		data, err := JSON.DecodeValidate[LoginData](request)
		if err != nil {
			JSON.ValidationError(writer, err)
			return
		}

		// one generic refusal for missing accounts, blocked ones and wrong passwords
		account, err := ar.GetAccountByEmail(data.Email)
		if err != nil || account.Blocked || !CheckPasswordHash(data.Password, account.Password) {
			JSON.UnauthorisedWithMessage(writer, ErrBadCredentials.Error())
			return
		}

		token, err := tokens.Sign(account)
		if err != nil {
			JSON.InternalServerError(writer, err)
			return
		}

		JSON.Ok(writer, struct {
			Token string
			User  *users.Account
		}{token, account})
	}
}

// forgotPassword always acknowledges; mail delivery is an external collaborator,
// so the token is merely logged for the operator to relay.
func forgotPassword(ar *Repository, logger logrus.FieldLogger) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		data, err := JSON.DecodeValidate[ForgotPasswordData](request)
		if err != nil {
			JSON.ValidationError(writer, err)
			return
		}

		token, err := ar.CreateResetToken(data.Email)
		if err != nil {
			JSON.InternalServerError(writer, err)
			return
		}
		if token != "" {
			logger.WithField("email", data.Email).Infof("password reset token issued: %s", token)
		}
		JSON.NoContent(writer)
	}
}

func resetPassword(ar *Repository) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		data, err := JSON.DecodeValidate[ResetPasswordData](request)
		if err != nil {
			JSON.ValidationError(writer, err)
			return
		}

		if err = ar.ResetPassword(data); err != nil {
			if errors.Is(err, ErrBadCredentials) {
				JSON.UnauthorisedWithMessage(writer, err.Error())
				return
			}
			JSON.InternalServerError(writer, err)
			return
		}
		JSON.NoContent(writer)
	}
}

func changePassword(ar *Repository) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		actor, err := GetActor(request)
		if err != nil {
			JSON.Unauthorised(writer)
			return
		}

		data, err := JSON.DecodeValidate[ChangePasswordData](request)
		if err != nil {
			JSON.ValidationError(writer, err)
			return
		}

		if err = ar.ChangePassword(actor.Id, data); err != nil {
			if errors.Is(err, ErrBadCredentials) {
				JSON.UnauthorisedWithMessage(writer, err.Error())
				return
			}
			JSON.InternalServerError(writer, err)
			return
		}
		JSON.NoContent(writer)
	}
}

func getProfile(ar *Repository) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		actor, err := GetActor(request)
		if err != nil {
			JSON.Unauthorised(writer)
			return
		}

		account, err := ar.GetAccountById(actor.Id)
		if err != nil {
			entities.RespondError(writer, err)
			return
		}
		JSON.Ok(writer, account)
	}
}

func updateProfile(ar *Repository) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		actor, err := GetActor(request)
		if err != nil {
			JSON.Unauthorised(writer)
			return
		}

		data, err := JSON.DecodeValidate[ProfileData](request)
		if err != nil {
			JSON.ValidationError(writer, err)
			return
		}

		account, err := ar.UpdateProfile(actor.Id, data)
		if err != nil {
			entities.RespondError(writer, err)
			return
		}
		JSON.Ok(writer, account)
	}
}

func listPending(ar *Repository) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		staged, err := ar.ListPending()
		if err != nil {
			entities.RespondError(writer, err)
			return
		}
		JSON.Ok(writer, staged)
	}
}

func approvePending(ar *Repository) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		// the role payload is optional; an empty body means the default role
		data, err := JSON.DecodeValidate[ApprovalData](request)
		if err != nil && request.ContentLength > 0 {
			JSON.ValidationError(writer, err)
			return
		}

		account, err := ar.Approve(rest.Param(request, "id"), data.Role)
		if err != nil {
			entities.RespondError(writer, err)
			return
		}
		JSON.Created(writer, account)
	}
}

func rejectPending(ar *Repository) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		if err := ar.Reject(rest.Param(request, "id")); err != nil {
			entities.RespondError(writer, err)
			return
		}
		JSON.NoContent(writer)
	}
}

// manageUser is the admin panel's moderation endpoint.
func manageUser(ar *Repository) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		data, err := JSON.DecodeValidate[ManageUserData](request)
		if err != nil {
			JSON.ValidationError(writer, err)
			return
		}

		switch data.Action {
		case ActionBlock, ActionUnblock:
			account, err := ar.SetBlocked(data.UserId, data.Action == ActionBlock)
			if err != nil {
				entities.RespondError(writer, err)
				return
			}
			JSON.Ok(writer, account)

		case ActionUpdate:
			account, err := ar.UpdateProfile(data.UserId, data.Profile)
			if err != nil {
				entities.RespondError(writer, err)
				return
			}
			if data.Role != "" {
				if account, err = ar.SetRole(data.UserId, data.Role); err != nil {
					entities.RespondError(writer, err)
					return
				}
			}
			JSON.Ok(writer, account)

		case ActionDelete:
			if err := ar.DeleteAccountCascade(data.UserId); err != nil {
				entities.RespondError(writer, err)
				return
			}
			JSON.NoContent(writer)

		default:
			JSON.BadRequestWithMessage(writer, "unknown action")
		}
	}
}
