package collectibles

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/silvestri/maglia/pkg/entities"
)

var jerseyColumns = []string{
	"owner_email", "owner_name", "title", "team", "league", "season", "player",
	"number", "size", "brand", "category", "images", "visibility", "likes",
	"purchase", "extra", "created", "updated",
}

func scanJersey(row entities.Scanner) (*Jersey, error) {
	var j Jersey
	err := row.Scan(&j.Id, &j.OwnerEmail, &j.OwnerName, &j.Title, &j.Team, &j.League,
		&j.Season, &j.Player, &j.Number, &j.Size, &j.Brand, &j.Category, &j.Images,
		&j.Visibility, &j.Likes, &j.Purchase, &j.Extra, &j.Created, &j.Updated)
	return &j, err
}

var itemColumns = []string{
	"owner_email", "owner_name", "title", "category", "description", "images",
	"visibility", "likes", "purchase", "extra", "created", "updated",
}

func scanItem(row entities.Scanner) (*CollectionItem, error) {
	var c CollectionItem
	err := row.Scan(&c.Id, &c.OwnerEmail, &c.OwnerName, &c.Title, &c.Category,
		&c.Description, &c.Images, &c.Visibility, &c.Likes, &c.Purchase, &c.Extra,
		&c.Created, &c.Updated)
	return &c, err
}

func JerseyKind() entities.Kind[*Jersey] {
	return entities.Kind[*Jersey]{
		Name:    "Jersey",
		Table:   "jerseys",
		Columns: jerseyColumns,
		New:     func() *Jersey { return &Jersey{} },
		Scan:    scanJersey,
		Args: func(j *Jersey) []any {
			return []any{j.OwnerEmail, j.OwnerName, j.Title, j.Team, j.League, j.Season,
				j.Player, j.Number, j.Size, j.Brand, j.Category, j.Images, j.Visibility,
				j.Likes, j.Purchase, j.Extra, j.Created, j.Updated}
		},
		Prepare: func(tx *sql.Tx, actor entities.Actor, j *Jersey) error {
			prepareOwnership(tx, actor, &j.OwnerEmail, &j.OwnerName)
			if j.Visibility == "" {
				j.Visibility = VisibilityPublic
			}
			j.Likes = 0
			return nil
		},
		Authorize: authorizeOwner(func(j *Jersey) string { return j.OwnerEmail }),
		Readable:  readableOwner(func(j *Jersey) (string, string) { return j.OwnerEmail, j.Visibility }),
		Redact: func(actor entities.Actor, j *Jersey) *Jersey {
			if actor.Email == j.OwnerEmail || actor.Moderates() {
				return j
			}
			var public = *j
			public.Purchase = nil
			return &public
		},
	}
}

func ItemKind() entities.Kind[*CollectionItem] {
	return entities.Kind[*CollectionItem]{
		Name:    "CollectionItem",
		Table:   "collection_items",
		Columns: itemColumns,
		New:     func() *CollectionItem { return &CollectionItem{} },
		Scan:    scanItem,
		Args: func(c *CollectionItem) []any {
			return []any{c.OwnerEmail, c.OwnerName, c.Title, c.Category, c.Description,
				c.Images, c.Visibility, c.Likes, c.Purchase, c.Extra, c.Created, c.Updated}
		},
		Prepare: func(tx *sql.Tx, actor entities.Actor, c *CollectionItem) error {
			prepareOwnership(tx, actor, &c.OwnerEmail, &c.OwnerName)
			if c.Visibility == "" {
				c.Visibility = VisibilityPublic
			}
			c.Likes = 0
			return nil
		},
		Authorize: authorizeOwner(func(c *CollectionItem) string { return c.OwnerEmail }),
		Readable:  readableOwner(func(c *CollectionItem) (string, string) { return c.OwnerEmail, c.Visibility }),
		Redact: func(actor entities.Actor, c *CollectionItem) *CollectionItem {
			if actor.Email == c.OwnerEmail || actor.Moderates() {
				return c
			}
			var public = *c
			public.Purchase = nil
			return &public
		},
	}
}

func CommentKind() entities.Kind[*Comment] {
	return entities.Kind[*Comment]{
		Name:    "Comment",
		Table:   "comments",
		Columns: []string{"collectible_id", "author_email", "author_name", "body", "created"},
		New:     func() *Comment { return &Comment{} },
		Scan: func(row entities.Scanner) (*Comment, error) {
			var c Comment
			err := row.Scan(&c.Id, &c.CollectibleId, &c.AuthorEmail, &c.AuthorName, &c.Body, &c.Created)
			return &c, err
		},
		Args: func(c *Comment) []any {
			return []any{c.CollectibleId, c.AuthorEmail, c.AuthorName, c.Body, c.Created}
		},
		Prepare: func(tx *sql.Tx, actor entities.Actor, c *Comment) error {
			c.AuthorEmail = actor.Email
			c.AuthorName = actor.Name
			return requireCollectible(tx, c.CollectibleId)
		},
		Authorize: authorizeOwner(func(c *Comment) string { return c.AuthorEmail }),
	}
}

func LikeKind() entities.Kind[*JerseyLike] {
	return entities.Kind[*JerseyLike]{
		Name:    "JerseyLike",
		Table:   "jersey_likes",
		Columns: []string{"collectible_id", "user_email", "created"},
		New:     func() *JerseyLike { return &JerseyLike{} },
		Scan: func(row entities.Scanner) (*JerseyLike, error) {
			var l JerseyLike
			err := row.Scan(&l.Id, &l.CollectibleId, &l.UserEmail, &l.Created)
			return &l, err
		},
		Args: func(l *JerseyLike) []any {
			return []any{l.CollectibleId, l.UserEmail, l.Created}
		},
		Prepare: func(tx *sql.Tx, actor entities.Actor, l *JerseyLike) error {
			// likes belong to whoever casts them, regardless of the payload
			l.UserEmail = actor.Email
			return requireCollectible(tx, l.CollectibleId)
		},
		Authorize: func(actor entities.Actor, op entities.Op, l *JerseyLike) error {
			switch op {
			case entities.OpUpdate:
				// a like is a fact, not a document
				return entities.ErrForbidden
			case entities.OpDelete:
				if actor.Email != l.UserEmail && !actor.Moderates() {
					return entities.ErrForbidden
				}
			}
			return nil
		},
	}
}

// prepareOwnership pins the record to its creator; moderators may catalogue on
// another member's behalf, in which case the snapshot is looked up.
func prepareOwnership(tx *sql.Tx, actor entities.Actor, ownerEmail, ownerName *string) {
	if *ownerEmail == "" || (*ownerEmail != actor.Email && !actor.Moderates()) {
		*ownerEmail = actor.Email
	}
	if *ownerEmail == actor.Email {
		*ownerName = actor.Name
		return
	}
	// tolerate a missing owner row: the snapshot simply stays empty
	_ = tx.QueryRow("SELECT name FROM users WHERE email = ?", *ownerEmail).Scan(ownerName)
}

// requireCollectible probes both collectible tables for the referenced id.
func requireCollectible(tx *sql.Tx, collectibleId string) error {
	var exists = false
	err := tx.QueryRow(`
		SELECT EXISTS (
			SELECT TRUE FROM jerseys WHERE id = ?
			UNION SELECT TRUE FROM collection_items WHERE id = ?
		)`, collectibleId, collectibleId).Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: unknown collectible %q", entities.ErrValidation, collectibleId)
	}
	return nil
}

// authorizeOwner restricts updates and deletions to the record's owner,
// moderators and admins.
func authorizeOwner[T entities.Record](owner func(T) string) func(entities.Actor, entities.Op, T) error {
	return func(actor entities.Actor, op entities.Op, record T) error {
		switch op {
		case entities.OpUpdate, entities.OpDelete:
			if actor.Email != owner(record) && !actor.Moderates() {
				return entities.ErrForbidden
			}
		}
		return nil
	}
}

// readableOwner hides private records from everyone but their owner and the moderators.
func readableOwner[T entities.Record](view func(T) (owner, visibility string)) func(entities.Actor, T) bool {
	return func(actor entities.Actor, record T) bool {
		owner, visibility := view(record)
		return visibility == VisibilityPublic || actor.Email == owner || actor.Moderates()
	}
}
