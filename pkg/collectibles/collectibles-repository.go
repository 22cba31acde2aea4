package collectibles

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/silvestri/maglia/pkg/entities"
	"github.com/silvestri/maglia/pkg/events"
	"github.com/silvestri/maglia/pkg/ntime"
	"github.com/silvestri/maglia/pkg/rest"
)

// Store implements the like toggle on top of the uniform contract: the
// existence probe, the like row and the counter move in one transaction, so
// concurrent toggles can't under- or over-count.
type Store struct {
	Connection *sql.DB
	bus        events.Bus
}

func NewStore(connection *sql.DB, bus events.Bus) *Store {
	return &Store{connection, bus}
}

// collection resolves the route's :collection segment to its table and kind tag.
type collection struct {
	table string
	kind  string
}

var collections = map[string]collection{
	"jerseys": {"jerseys", "Jersey"},
	"items":   {"collection_items", "CollectionItem"},
}

func resolveCollection(name string) (collection, error) {
	c, found := collections[strings.ToLower(name)]
	if !found {
		return collection{}, entities.ErrNotFound
	}
	return c, nil
}

// Like endorses the collectible on the actor's behalf. Liking an already
// liked collectible changes nothing and reports the current count.
func (cs *Store) Like(collectionName, collectibleId string, actor entities.Actor) (likes int, err error) {
	target, err := resolveCollection(collectionName)
	if err != nil {
		return 0, err
	}

	tx, err := cs.Connection.Begin()
	if err != nil {
		return 0, err
	}
	defer rollback(tx)

	// the existence probe keeps the toggle idempotent
	var existing string
	err = tx.QueryRow(
		"SELECT id FROM jersey_likes WHERE collectible_id = ? AND user_email = ?",
		collectibleId, actor.Email).Scan(&existing)
	if err == nil {
		return cs.currentLikes(tx, target, collectibleId)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	var like = JerseyLike{
		Id:            rest.MustGetNewUUID(),
		CollectibleId: collectibleId,
		UserEmail:     actor.Email,
		Created:       ntime.Now(),
	}
	if _, err = tx.Exec(
		"INSERT INTO jersey_likes (id, collectible_id, user_email, created) VALUES (?, ?, ?, ?)",
		like.Id, like.CollectibleId, like.UserEmail, like.Created); err != nil {
		return 0, err
	}

	if err = tx.QueryRow(
		"UPDATE "+target.table+" SET likes = likes + 1, updated = ? WHERE id = ? RETURNING likes",
		ntime.Now(), collectibleId).Scan(&likes); err != nil {
		// a rolled back insert leaves no stray like when the collectible is gone
		if errors.Is(err, sql.ErrNoRows) {
			return 0, entities.ErrNotFound
		}
		return 0, err
	}

	updated, err := cs.publicView(tx, target, collectibleId)
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}

	cs.bus.PublishUpdate("JerseyLike", like.Id, &like)
	cs.bus.PublishUpdate(target.kind, collectibleId, updated)
	return likes, nil
}

// Unlike withdraws the actor's endorsement; withdrawing a non-existent one is
// a no-op, not an error.
func (cs *Store) Unlike(collectionName, collectibleId string, actor entities.Actor) (likes int, err error) {
	target, err := resolveCollection(collectionName)
	if err != nil {
		return 0, err
	}

	tx, err := cs.Connection.Begin()
	if err != nil {
		return 0, err
	}
	defer rollback(tx)

	var likeId string
	err = tx.QueryRow(
		"DELETE FROM jersey_likes WHERE collectible_id = ? AND user_email = ? RETURNING id",
		collectibleId, actor.Email).Scan(&likeId)
	if errors.Is(err, sql.ErrNoRows) {
		return cs.currentLikes(tx, target, collectibleId)
	}
	if err != nil {
		return 0, err
	}

	// the MAX guard protects counters that predate the transactional toggle
	if err = tx.QueryRow(
		"UPDATE "+target.table+" SET likes = MAX(likes - 1, 0), updated = ? WHERE id = ? RETURNING likes",
		ntime.Now(), collectibleId).Scan(&likes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, entities.ErrNotFound
		}
		return 0, err
	}

	updated, err := cs.publicView(tx, target, collectibleId)
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}

	cs.bus.PublishDelete("JerseyLike", likeId)
	cs.bus.PublishUpdate(target.kind, collectibleId, updated)
	return likes, nil
}

// currentLikes reports the counter without mutating anything; used by the
// no-op branches of the toggle, which broadcast nothing.
func (cs *Store) currentLikes(tx *sql.Tx, target collection, collectibleId string) (likes int, err error) {
	if err = tx.QueryRow(
		"SELECT likes FROM "+target.table+" WHERE id = ?", collectibleId).Scan(&likes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, entities.ErrNotFound
		}
		return 0, err
	}
	return likes, nil
}

// publicView loads the collectible as every broadcast listener may see it,
// with purchase details stripped.
func (cs *Store) publicView(tx *sql.Tx, target collection, collectibleId string) (any, error) {
	switch target.kind {
	case "Jersey":
		jersey, err := scanJersey(tx.QueryRow(
			"SELECT id, "+strings.Join(jerseyColumns, ", ")+" FROM jerseys WHERE id = ?", collectibleId))
		if err != nil {
			return nil, err
		}
		jersey.Purchase = nil
		return jersey, nil
	default:
		item, err := scanItem(tx.QueryRow(
			"SELECT id, "+strings.Join(itemColumns, ", ")+" FROM collection_items WHERE id = ?", collectibleId))
		if err != nil {
			return nil, err
		}
		item.Purchase = nil
		return item, nil
	}
}

func rollback(tx *sql.Tx) {
	_ = tx.Rollback()
}
