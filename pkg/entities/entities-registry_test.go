package entities_test

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/silvestri/maglia/pkg/collectibles"
	"github.com/silvestri/maglia/pkg/content"
	"github.com/silvestri/maglia/pkg/entities"
	"github.com/silvestri/maglia/pkg/events"
	"github.com/silvestri/maglia/pkg/messages"
	"github.com/silvestri/maglia/pkg/ntime"
	"github.com/silvestri/maglia/pkg/rest"
	"github.com/silvestri/maglia/pkg/storage/sqlite"
	"github.com/silvestri/maglia/pkg/users"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	anna  = entities.Actor{Id: "anna-id", Email: "anna@example.com", Name: "Anna", Role: entities.RoleUser}
	bruno = entities.Actor{Id: "bruno-id", Email: "bruno@example.com", Name: "Bruno", Role: entities.RoleUser}
	admin = entities.Actor{Id: "admin-id", Email: "admin@example.com", Name: "Admin", Role: entities.RoleAdmin}
)

type fixture struct {
	handler  http.Handler
	recorder *events.Recorder
	db       *sql.DB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	storage, err := sqlite.New(logger, filepath.Join(t.TempDir(), "maglia.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Connection.Close() })

	recorder := events.NewRecorder()
	registry := entities.NewRegistry(storage.Connection, recorder, logger)
	entities.Register(registry, users.AccountKind())
	entities.Register(registry, users.PendingKind())
	entities.Register(registry, collectibles.JerseyKind())
	entities.Register(registry, collectibles.ItemKind())
	entities.Register(registry, collectibles.CommentKind())
	entities.Register(registry, collectibles.LikeKind())
	entities.Register(registry, messages.MessageKind())
	entities.Register(registry, content.Kind())

	engine, err := rest.New(rest.Config{Logger: logger})
	require.NoError(t, err)
	entities.RegisterHandlers(engine, registry, actorFromHeaders, passthrough)

	return &fixture{handler: engine.Handler(), recorder: recorder, db: storage.Connection}
}

// actorFromHeaders substitutes the auth middleware: tests declare the caller through headers.
func actorFromHeaders(request *http.Request) (entities.Actor, error) {
	email := request.Header.Get("X-Actor-Email")
	if email == "" {
		return entities.Actor{}, errors.New("anonymous request")
	}
	return entities.Actor{
		Id:    request.Header.Get("X-Actor-Id"),
		Email: email,
		Name:  request.Header.Get("X-Actor-Name"),
		Role:  request.Header.Get("X-Actor-Role"),
	}, nil
}

func passthrough(next http.Handler) http.Handler { return next }

func (f *fixture) do(t *testing.T, actor entities.Actor, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if payload != nil {
		serialised, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(serialised)
	}

	request := httptest.NewRequest(method, path, body)
	request.Header.Set("X-Actor-Id", actor.Id)
	request.Header.Set("X-Actor-Email", actor.Email)
	request.Header.Set("X-Actor-Name", actor.Name)
	request.Header.Set("X-Actor-Role", actor.Role)

	response := httptest.NewRecorder()
	f.handler.ServeHTTP(response, request)
	return response
}

func decode[T any](t *testing.T, response *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	require.NoError(t, json.Unmarshal(response.Body.Bytes(), &value))
	return value
}

func (f *fixture) seedAccount(t *testing.T, actor entities.Actor) {
	t.Helper()
	_, err := f.db.Exec(`
		INSERT INTO users (id, email, name, password, role, blocked, accepts_messages, hidden_categories, extra, created, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		actor.Id, actor.Email, actor.Name, "irrelevant-hash", actor.Role, false, true,
		entities.StringList{}, entities.JSONMap{}, ntime.Now(), ntime.Now())
	require.NoError(t, err)
}

func TestCreateBroadcastsUpdate(t *testing.T) {
	f := newFixture(t)

	response := f.do(t, anna, http.MethodPost, "/entities/Jersey",
		map[string]any{"Title": "Sampdoria 1991 Home", "Team": "Sampdoria"})
	require.Equal(t, http.StatusCreated, response.Code)

	jersey := decode[collectibles.Jersey](t, response)
	assert.NotEmpty(t, jersey.Id)
	assert.Equal(t, anna.Email, jersey.OwnerEmail)
	assert.Equal(t, anna.Name, jersey.OwnerName)
	assert.Equal(t, collectibles.VisibilityPublic, jersey.Visibility)

	updates := f.recorder.Matching(events.EntityUpdated, "Jersey")
	require.Len(t, updates, 1)
	assert.Equal(t, jersey.Id, updates[0].Id)
}

func TestFailedCreateBroadcastsNothing(t *testing.T) {
	f := newFixture(t)

	response := f.do(t, anna, http.MethodPost, "/entities/Jersey", map[string]any{"Team": "Sampdoria"})
	require.Equal(t, http.StatusBadRequest, response.Code)
	assert.Empty(t, f.recorder.Events())
}

func TestDuplicateAccountEmailConflicts(t *testing.T) {
	f := newFixture(t)

	payload := map[string]any{"Email": "carla@example.com", "Name": "Carla"}
	require.Equal(t, http.StatusCreated,
		f.do(t, admin, http.MethodPost, "/entities/User", payload).Code)
	assert.Equal(t, http.StatusConflict,
		f.do(t, admin, http.MethodPost, "/entities/User", payload).Code)

	// the refused duplicate must leave no trace, in storage or on the bus
	var total int
	require.NoError(t, f.db.QueryRow(
		"SELECT COUNT(*) FROM users WHERE email = ?", "carla@example.com").Scan(&total))
	assert.Equal(t, 1, total)
	assert.Len(t, f.recorder.Matching(events.EntityUpdated, "User"), 1)
}

func TestPatchMergesFields(t *testing.T) {
	f := newFixture(t)

	created := decode[collectibles.Jersey](t, f.do(t, anna, http.MethodPost, "/entities/Jersey",
		map[string]any{"Title": "Parma 1995 Away", "Team": "Parma", "Season": "1994-95"}))

	response := f.do(t, anna, http.MethodPatch, "/entities/Jersey/"+created.Id,
		map[string]any{"Id": "forged-id", "Player": "Asprilla", "Number": "10"})
	require.Equal(t, http.StatusOK, response.Code)

	patched := decode[collectibles.Jersey](t, response)
	assert.Equal(t, created.Id, patched.Id)
	assert.Equal(t, "Parma", patched.Team)
	assert.Equal(t, "1994-95", patched.Season)
	assert.Equal(t, "Asprilla", patched.Player)

	fetched := decode[collectibles.Jersey](t, f.do(t, anna, http.MethodGet, "/entities/Jersey/"+created.Id, nil))
	assert.Equal(t, "Asprilla", fetched.Player)
	assert.Equal(t, "Parma 1995 Away", fetched.Title)
}

func TestUnknownKindsAndRecords(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusNotFound, f.do(t, anna, http.MethodGet, "/entities/Gadget", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, anna, http.MethodGet, "/entities/Jersey/no-such-id", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, anna, http.MethodDelete, "/entities/Jersey/no-such-id", nil).Code)
}

func TestAccountMutationsRequireAdmin(t *testing.T) {
	f := newFixture(t)

	response := f.do(t, anna, http.MethodPost, "/entities/User",
		map[string]any{"Email": "dario@example.com", "Name": "Dario"})
	assert.Equal(t, http.StatusForbidden, response.Code)

	var total int
	require.NoError(t, f.db.QueryRow("SELECT COUNT(*) FROM users").Scan(&total))
	assert.Zero(t, total)
	assert.Empty(t, f.recorder.Events())
}

func TestPendingRegistrationsHiddenFromMembers(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, http.StatusCreated, f.do(t, admin, http.MethodPost, "/entities/PendingUser",
		map[string]any{"Email": "elena@example.com", "Name": "Elena"}).Code)

	assert.Empty(t, decode[[]users.PendingRegistration](t,
		f.do(t, anna, http.MethodGet, "/entities/PendingUser", nil)))
	assert.Len(t, decode[[]users.PendingRegistration](t,
		f.do(t, admin, http.MethodGet, "/entities/PendingUser", nil)), 1)
}

func TestPrivateCollectiblesHiddenFromOthers(t *testing.T) {
	f := newFixture(t)

	created := decode[collectibles.Jersey](t, f.do(t, anna, http.MethodPost, "/entities/Jersey",
		map[string]any{"Title": "Prototype Third Kit", "Visibility": collectibles.VisibilityPrivate}))

	// hidden records read as missing, not as forbidden
	assert.Equal(t, http.StatusNotFound,
		f.do(t, bruno, http.MethodGet, "/entities/Jersey/"+created.Id, nil).Code)
	assert.Empty(t, decode[[]collectibles.Jersey](t, f.do(t, bruno, http.MethodGet, "/entities/Jersey", nil)))

	assert.Equal(t, http.StatusOK,
		f.do(t, anna, http.MethodGet, "/entities/Jersey/"+created.Id, nil).Code)
}

func TestPurchaseDetailsRedacted(t *testing.T) {
	f := newFixture(t)

	created := decode[collectibles.Jersey](t, f.do(t, anna, http.MethodPost, "/entities/Jersey",
		map[string]any{
			"Title":    "Juventus 1996 Home",
			"Purchase": map[string]any{"price": 250, "vendor": "classicshirts"},
		}))

	mine := decode[collectibles.Jersey](t, f.do(t, anna, http.MethodGet, "/entities/Jersey/"+created.Id, nil))
	assert.NotEmpty(t, mine.Purchase)

	theirs := decode[collectibles.Jersey](t, f.do(t, bruno, http.MethodGet, "/entities/Jersey/"+created.Id, nil))
	assert.Empty(t, theirs.Purchase)

	// broadcasts reach every listener, so they carry the public view
	updates := f.recorder.Matching(events.EntityUpdated, "Jersey")
	require.Len(t, updates, 1)
	broadcast, ok := updates[0].Data.(*collectibles.Jersey)
	require.True(t, ok)
	assert.Empty(t, broadcast.Purchase)
}

func TestOnlyOwnersAndModeratorsMutateCollectibles(t *testing.T) {
	f := newFixture(t)

	created := decode[collectibles.Jersey](t, f.do(t, anna, http.MethodPost, "/entities/Jersey",
		map[string]any{"Title": "Roma 2001 Home"}))

	assert.Equal(t, http.StatusForbidden, f.do(t, bruno, http.MethodPatch,
		"/entities/Jersey/"+created.Id, map[string]any{"Title": "Defaced"}).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, bruno, http.MethodDelete,
		"/entities/Jersey/"+created.Id, nil).Code)

	moderator := entities.Actor{Id: "mod-id", Email: "mod@example.com", Name: "Mod", Role: entities.RoleModerator}
	assert.Equal(t, http.StatusOK, f.do(t, moderator, http.MethodPatch,
		"/entities/Jersey/"+created.Id, map[string]any{"Category": "serie-a"}).Code)
}

func TestDeleteBroadcastsTombstone(t *testing.T) {
	f := newFixture(t)

	created := decode[collectibles.Jersey](t, f.do(t, anna, http.MethodPost, "/entities/Jersey",
		map[string]any{"Title": "Lazio 2000 Home"}))

	require.Equal(t, http.StatusNoContent,
		f.do(t, anna, http.MethodDelete, "/entities/Jersey/"+created.Id, nil).Code)

	tombstones := f.recorder.Matching(events.EntityDeleted, "Jersey")
	require.Len(t, tombstones, 1)
	assert.Equal(t, created.Id, tombstones[0].Id)
	assert.Nil(t, tombstones[0].Data)
}

func TestMessageDerivesConversation(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, anna)
	f.seedAccount(t, bruno)

	response := f.do(t, anna, http.MethodPost, "/entities/Message",
		map[string]any{"ReceiverEmail": "Bruno@Example.com", "Body": "is the Parma shirt for trade?"})
	require.Equal(t, http.StatusCreated, response.Code)

	message := decode[messages.Message](t, response)
	assert.Equal(t, anna.Email, message.SenderEmail)
	assert.Equal(t, bruno.Email, message.ReceiverEmail)
	assert.Equal(t, messages.ConversationID(anna.Email, bruno.Email), message.ConversationId)
	assert.False(t, message.Read)
}

func TestMessageRejectsInvalidRecipients(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, anna)

	// unknown recipient
	assert.Equal(t, http.StatusBadRequest, f.do(t, anna, http.MethodPost, "/entities/Message",
		map[string]any{"ReceiverEmail": "ghost@example.com", "Body": "anyone there?"}).Code)

	// messaging oneself
	assert.Equal(t, http.StatusBadRequest, f.do(t, anna, http.MethodPost, "/entities/Message",
		map[string]any{"ReceiverEmail": anna.Email, "Body": "note to self"}).Code)

	// an opted out recipient
	f.seedAccount(t, bruno)
	_, err := f.db.Exec("UPDATE users SET accepts_messages = ? WHERE email = ?", false, bruno.Email)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, f.do(t, anna, http.MethodPost, "/entities/Message",
		map[string]any{"ReceiverEmail": bruno.Email, "Body": "hello"}).Code)
}

func TestDuplicateLikePairConflicts(t *testing.T) {
	f := newFixture(t)

	jersey := decode[collectibles.Jersey](t, f.do(t, anna, http.MethodPost, "/entities/Jersey",
		map[string]any{"Title": "Inter 1998 Home"}))

	payload := map[string]any{"CollectibleId": jersey.Id}
	require.Equal(t, http.StatusCreated,
		f.do(t, bruno, http.MethodPost, "/entities/JerseyLike", payload).Code)
	assert.Equal(t, http.StatusConflict,
		f.do(t, bruno, http.MethodPost, "/entities/JerseyLike", payload).Code)
}

func TestLikesRejectUpdates(t *testing.T) {
	f := newFixture(t)

	jersey := decode[collectibles.Jersey](t, f.do(t, anna, http.MethodPost, "/entities/Jersey",
		map[string]any{"Title": "Milan 1994 Home"}))
	like := decode[collectibles.JerseyLike](t, f.do(t, bruno, http.MethodPost, "/entities/JerseyLike",
		map[string]any{"CollectibleId": jersey.Id}))

	assert.Equal(t, http.StatusForbidden, f.do(t, bruno, http.MethodPatch,
		"/entities/JerseyLike/"+like.Id, map[string]any{"CollectibleId": "elsewhere"}).Code)
}

func TestCommentsRequireExistingCollectible(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusBadRequest, f.do(t, anna, http.MethodPost, "/entities/Comment",
		map[string]any{"CollectibleId": "no-such-collectible", "Body": "lovely"}).Code)

	jersey := decode[collectibles.Jersey](t, f.do(t, anna, http.MethodPost, "/entities/Jersey",
		map[string]any{"Title": "Napoli 1987 Home"}))

	response := f.do(t, bruno, http.MethodPost, "/entities/Comment",
		map[string]any{"CollectibleId": jersey.Id, "Body": "grail shirt"})
	require.Equal(t, http.StatusCreated, response.Code)

	comment := decode[collectibles.Comment](t, response)
	assert.Equal(t, bruno.Email, comment.AuthorEmail)
	assert.Equal(t, bruno.Name, comment.AuthorName)
}

func TestSiteContentEditsRequireAdmin(t *testing.T) {
	f := newFixture(t)

	payload := map[string]any{"ContentType": "terms", "Body": "be kind, trade fairly"}
	assert.Equal(t, http.StatusForbidden,
		f.do(t, anna, http.MethodPost, "/entities/SiteContent", payload).Code)
	require.Equal(t, http.StatusCreated,
		f.do(t, admin, http.MethodPost, "/entities/SiteContent", payload).Code)

	// the content type is unique
	assert.Equal(t, http.StatusConflict,
		f.do(t, admin, http.MethodPost, "/entities/SiteContent", payload).Code)
}
