package auth_test

import (
	"io"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/silvestri/maglia/pkg/auth"
	"github.com/silvestri/maglia/pkg/entities"
	"github.com/silvestri/maglia/pkg/events"
	"github.com/silvestri/maglia/pkg/ntime"
	"github.com/silvestri/maglia/pkg/storage/sqlite"
	"github.com/silvestri/maglia/pkg/users"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepository(t *testing.T) (*auth.Repository, *events.Recorder) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	storage, err := sqlite.New(logger, filepath.Join(t.TempDir(), "maglia.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Connection.Close() })

	recorder := events.NewRecorder()
	return auth.NewRepository(storage.Connection, recorder), recorder
}

// approveMember walks a registration through the full gate: staged, then approved.
func approveMember(t *testing.T, ar *auth.Repository, email, name string) *users.Account {
	t.Helper()

	hash, err := auth.HashPassword("correct horse battery")
	require.NoError(t, err)
	pending, err := ar.AddPending(auth.RegistrationData{Email: email, Name: name}, hash)
	require.NoError(t, err)

	account, err := ar.Approve(pending.Id, "")
	require.NoError(t, err)
	return account
}

func TestRegistrationApprovalFlow(t *testing.T) {
	ar, recorder := newRepository(t)

	hash, err := auth.HashPassword("a decent passphrase")
	require.NoError(t, err)
	pending, err := ar.AddPending(auth.RegistrationData{Email: "anna@example.com", Name: "Anna"}, hash)
	require.NoError(t, err)
	assert.Equal(t, entities.RolePending, pending.Status)

	// no account exists until an admin approves
	_, err = ar.GetAccountByEmail("anna@example.com")
	assert.ErrorIs(t, err, entities.ErrNotFound)

	account, err := ar.Approve(pending.Id, "")
	require.NoError(t, err)
	assert.Equal(t, entities.RoleUser, account.Role)
	assert.True(t, account.AcceptsMessages)
	assert.True(t, auth.CheckPasswordHash("a decent passphrase", account.Password))

	// the staging record is consumed by the approval
	_, err = ar.GetPending(pending.Id)
	assert.ErrorIs(t, err, entities.ErrNotFound)

	assert.Len(t, recorder.Matching(events.EntityUpdated, "PendingUser"), 1)
	assert.Len(t, recorder.Matching(events.EntityUpdated, "User"), 1)
	assert.Len(t, recorder.Matching(events.EntityDeleted, "PendingUser"), 1)
}

func TestApproveAssignsRequestedRole(t *testing.T) {
	ar, _ := newRepository(t)

	pending, err := ar.AddPending(auth.RegistrationData{Email: "mod@example.com", Name: "Marta"}, "hash")
	require.NoError(t, err)

	account, err := ar.Approve(pending.Id, entities.RoleModerator)
	require.NoError(t, err)
	assert.Equal(t, entities.RoleModerator, account.Role)
}

func TestDuplicateRegistrationsConflict(t *testing.T) {
	ar, _ := newRepository(t)

	_, err := ar.AddPending(auth.RegistrationData{Email: "anna@example.com", Name: "Anna"}, "hash")
	require.NoError(t, err)

	// a second applicant with the same address
	_, err = ar.AddPending(auth.RegistrationData{Email: "anna@example.com", Name: "Impostor"}, "hash")
	assert.ErrorIs(t, err, entities.ErrConflict)

	// an address already held by an approved member
	approveMember(t, ar, "bruno@example.com", "Bruno")
	_, err = ar.AddPending(auth.RegistrationData{Email: "bruno@example.com", Name: "Impostor"}, "hash")
	assert.ErrorIs(t, err, entities.ErrConflict)
}

func TestApproveAndRejectMissingRegistrations(t *testing.T) {
	ar, _ := newRepository(t)

	_, err := ar.Approve("no-such-id", "")
	assert.ErrorIs(t, err, entities.ErrNotFound)
	assert.ErrorIs(t, ar.Reject("no-such-id"), entities.ErrNotFound)
}

func TestRejectDiscardsRegistration(t *testing.T) {
	ar, recorder := newRepository(t)

	pending, err := ar.AddPending(auth.RegistrationData{Email: "spam@example.com", Name: "Spam"}, "hash")
	require.NoError(t, err)
	require.NoError(t, ar.Reject(pending.Id))

	_, err = ar.GetPending(pending.Id)
	assert.ErrorIs(t, err, entities.ErrNotFound)
	assert.Len(t, recorder.Matching(events.EntityDeleted, "PendingUser"), 1)
	assert.Empty(t, recorder.Matching(events.EntityUpdated, "User"))
}

func TestChangePasswordVerifiesCurrentOne(t *testing.T) {
	ar, _ := newRepository(t)
	account := approveMember(t, ar, "anna@example.com", "Anna")

	err := ar.ChangePassword(account.Id, auth.ChangePasswordData{
		OldPassword: "not the current one", NewPassword: "a brand new passphrase"})
	assert.ErrorIs(t, err, auth.ErrBadCredentials)

	require.NoError(t, ar.ChangePassword(account.Id, auth.ChangePasswordData{
		OldPassword: "correct horse battery", NewPassword: "a brand new passphrase"}))

	refreshed, err := ar.GetAccountById(account.Id)
	require.NoError(t, err)
	assert.True(t, auth.CheckPasswordHash("a brand new passphrase", refreshed.Password))
}

func TestResetTokenFlow(t *testing.T) {
	ar, _ := newRepository(t)
	account := approveMember(t, ar, "anna@example.com", "Anna")

	// unknown addresses yield no token and no error, to deny enumeration
	token, err := ar.CreateResetToken("ghost@example.com")
	require.NoError(t, err)
	assert.Empty(t, token)

	token, err = ar.CreateResetToken(account.Email)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.ErrorIs(t,
		ar.ResetPassword(auth.ResetPasswordData{Token: "bogus", Password: "whatever works"}),
		auth.ErrBadCredentials)

	require.NoError(t, ar.ResetPassword(auth.ResetPasswordData{Token: token, Password: "recovered passphrase"}))

	refreshed, err := ar.GetAccountById(account.Id)
	require.NoError(t, err)
	assert.True(t, auth.CheckPasswordHash("recovered passphrase", refreshed.Password))

	// the token is single use
	assert.ErrorIs(t,
		ar.ResetPassword(auth.ResetPasswordData{Token: token, Password: "recovered again"}),
		auth.ErrBadCredentials)
}

func TestUpdateProfileResyncsNameSnapshots(t *testing.T) {
	ar, _ := newRepository(t)
	account := approveMember(t, ar, "anna@example.com", "Anna")
	seedJersey(t, ar, "jersey-1", account.Email, account.Name)
	seedComment(t, ar, "comment-1", "jersey-1", account.Email, account.Name)

	newName := "Annalisa"
	updated, err := ar.UpdateProfile(account.Id, auth.ProfileData{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, "Annalisa", updated.Name)

	var snapshot string
	require.NoError(t, ar.Connection.QueryRow(
		"SELECT owner_name FROM jerseys WHERE id = ?", "jersey-1").Scan(&snapshot))
	assert.Equal(t, "Annalisa", snapshot)
	require.NoError(t, ar.Connection.QueryRow(
		"SELECT author_name FROM comments WHERE id = ?", "comment-1").Scan(&snapshot))
	assert.Equal(t, "Annalisa", snapshot)
}

func TestBlockedAccountsStayBlocked(t *testing.T) {
	ar, recorder := newRepository(t)
	account := approveMember(t, ar, "anna@example.com", "Anna")

	blocked, err := ar.SetBlocked(account.Id, true)
	require.NoError(t, err)
	assert.True(t, blocked.Blocked)

	unblocked, err := ar.SetBlocked(account.Id, false)
	require.NoError(t, err)
	assert.False(t, unblocked.Blocked)

	assert.GreaterOrEqual(t, len(recorder.Matching(events.EntityUpdated, "User")), 3)
}

func TestCascadeDeleteLeavesNoOrphans(t *testing.T) {
	ar, recorder := newRepository(t)
	anna := approveMember(t, ar, "anna@example.com", "Anna")
	bruno := approveMember(t, ar, "bruno@example.com", "Bruno")

	// anna's jersey, with bruno's comment and like attached to it
	seedJersey(t, ar, "anna-jersey", anna.Email, anna.Name)
	seedComment(t, ar, "bruno-comment", "anna-jersey", bruno.Email, bruno.Name)
	seedLike(t, ar, "bruno-like", "anna-jersey", bruno.Email)

	// bruno's jersey, liked and commented on by anna
	seedJersey(t, ar, "bruno-jersey", bruno.Email, bruno.Name)
	seedComment(t, ar, "anna-comment", "bruno-jersey", anna.Email, anna.Name)
	seedLike(t, ar, "anna-like", "bruno-jersey", anna.Email)

	// a conversation between the two
	seedMessage(t, ar, "msg-1", anna.Email, bruno.Email)
	seedMessage(t, ar, "msg-2", bruno.Email, anna.Email)

	require.NoError(t, ar.DeleteAccountCascade(anna.Id))

	// nothing referencing anna survives, in any table
	for query, expected := range map[string]int{
		"SELECT COUNT(*) FROM users WHERE email = 'anna@example.com'":             0,
		"SELECT COUNT(*) FROM jerseys WHERE owner_email = 'anna@example.com'":     0,
		"SELECT COUNT(*) FROM comments WHERE author_email = 'anna@example.com'":   0,
		"SELECT COUNT(*) FROM comments WHERE collectible_id = 'anna-jersey'":      0,
		"SELECT COUNT(*) FROM jersey_likes WHERE user_email = 'anna@example.com'": 0,
		"SELECT COUNT(*) FROM jersey_likes WHERE collectible_id = 'anna-jersey'":  0,
		"SELECT COUNT(*) FROM messages WHERE sender_email = 'anna@example.com'":   0,
		"SELECT COUNT(*) FROM messages WHERE receiver_email = 'anna@example.com'": 0,
		// bruno's own records survive untouched
		"SELECT COUNT(*) FROM users WHERE email = 'bruno@example.com'":         1,
		"SELECT COUNT(*) FROM jerseys WHERE owner_email = 'bruno@example.com'": 1,
	} {
		var count int
		require.NoError(t, ar.Connection.QueryRow(query).Scan(&count), query)
		assert.Equal(t, expected, count, query)
	}

	// one tombstone per removed record, plus the account's own
	assert.Len(t, recorder.Matching(events.EntityDeleted, "User"), 1)
	assert.Len(t, recorder.Matching(events.EntityDeleted, "Jersey"), 1)
	assert.Len(t, recorder.Matching(events.EntityDeleted, "Comment"), 2)
	assert.Len(t, recorder.Matching(events.EntityDeleted, "JerseyLike"), 2)
	assert.Len(t, recorder.Matching(events.EntityDeleted, "Message"), 2)
}

func TestEnsureAdminSeedsOnce(t *testing.T) {
	ar, _ := newRepository(t)

	require.NoError(t, ar.EnsureAdmin("admin@example.com", "hash"))
	require.NoError(t, ar.EnsureAdmin("other@example.com", "hash"))

	var total int
	require.NoError(t, ar.Connection.QueryRow(
		"SELECT COUNT(*) FROM users WHERE role = ?", entities.RoleAdmin).Scan(&total))
	assert.Equal(t, 1, total)

	account, err := ar.GetAccountByEmail("admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, entities.RoleAdmin, account.Role)
}

func seedJersey(t *testing.T, ar *auth.Repository, id, ownerEmail, ownerName string) {
	t.Helper()
	now := ntime.Now()
	_, err := ar.Connection.Exec(`
		INSERT INTO jerseys (id, owner_email, owner_name, title, images, visibility, likes, purchase, extra, created, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ownerEmail, ownerName, "Test Jersey", entities.StringList{}, "public", 0,
		entities.JSONMap{}, entities.JSONMap{}, now, now)
	require.NoError(t, err)
}

func seedComment(t *testing.T, ar *auth.Repository, id, collectibleId, authorEmail, authorName string) {
	t.Helper()
	_, err := ar.Connection.Exec(`
		INSERT INTO comments (id, collectible_id, author_email, author_name, body, created)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, collectibleId, authorEmail, authorName, "great shirt", ntime.Now())
	require.NoError(t, err)
}

func seedLike(t *testing.T, ar *auth.Repository, id, collectibleId, userEmail string) {
	t.Helper()
	_, err := ar.Connection.Exec(`
		INSERT INTO jersey_likes (id, collectible_id, user_email, created) VALUES (?, ?, ?, ?)`,
		id, collectibleId, userEmail, ntime.Now())
	require.NoError(t, err)
}

func seedMessage(t *testing.T, ar *auth.Repository, id, sender, receiver string) {
	t.Helper()
	_, err := ar.Connection.Exec(`
		INSERT INTO messages (id, sender_email, receiver_email, conversation_id, body, read, created)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, sender, receiver, sender+"|"+receiver, "hello", false, ntime.Now())
	require.NoError(t, err)
}
