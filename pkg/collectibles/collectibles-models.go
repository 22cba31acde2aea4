package collectibles

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/silvestri/maglia/pkg/entities"
	"github.com/silvestri/maglia/pkg/ntime"
)

const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

var visibilities = []interface{}{VisibilityPublic, VisibilityPrivate}

// Jersey is the flagship collectible: a catalogued shirt with provenance
// metadata, an ordered list of image references (the first is canonical) and
// purchase details only its owner and the moderators may see.
type Jersey struct {
	Id         string
	OwnerEmail string
	OwnerName  string
	Title      string
	Team       string
	League     string
	Season     string
	Player     string
	Number     string
	Size       string
	Brand      string
	Category   string
	Images     entities.StringList
	Visibility string
	Likes      int
	Purchase   entities.JSONMap
	Extra      entities.JSONMap
	Created    ntime.NTime
	Updated    ntime.NTime
}

func (j *Jersey) EntityID() string      { return j.Id }
func (j *Jersey) SetEntityID(id string) { j.Id = id }

func (j *Jersey) Touch(now ntime.NTime, creating bool) {
	if creating {
		j.Created = now
	}
	j.Updated = now
}

func (j *Jersey) Validate() error {
	return validation.ValidateStruct(j,
		validation.Field(&j.Title, validation.Required, validation.Length(1, 120)),
		validation.Field(&j.Visibility, validation.Required, validation.In(visibilities...)),
		validation.Field(&j.Likes, validation.Min(0)),
	)
}

// CollectionItem covers memorabilia other than jerseys: scarves, pennants,
// matchday programmes and the like. Same conceptual role, looser metadata.
type CollectionItem struct {
	Id          string
	OwnerEmail  string
	OwnerName   string
	Title       string
	Category    string
	Description string
	Images      entities.StringList
	Visibility  string
	Likes       int
	Purchase    entities.JSONMap
	Extra       entities.JSONMap
	Created     ntime.NTime
	Updated     ntime.NTime
}

func (c *CollectionItem) EntityID() string      { return c.Id }
func (c *CollectionItem) SetEntityID(id string) { c.Id = id }

func (c *CollectionItem) Touch(now ntime.NTime, creating bool) {
	if creating {
		c.Created = now
	}
	c.Updated = now
}

func (c *CollectionItem) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Title, validation.Required, validation.Length(1, 120)),
		validation.Field(&c.Visibility, validation.Required, validation.In(visibilities...)),
		validation.Field(&c.Likes, validation.Min(0)),
	)
}

// Comment carries a write-time snapshot of the author's display name; profile
// renames re-sync the snapshot in a separate batch update.
type Comment struct {
	Id            string
	CollectibleId string
	AuthorEmail   string
	AuthorName    string
	Body          string
	Created       ntime.NTime
}

func (c *Comment) EntityID() string      { return c.Id }
func (c *Comment) SetEntityID(id string) { c.Id = id }

func (c *Comment) Touch(now ntime.NTime, creating bool) {
	if creating {
		c.Created = now
	}
}

func (c *Comment) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.CollectibleId, validation.Required),
		validation.Field(&c.Body, validation.Required, validation.Length(1, 3000)),
	)
}

// JerseyLike records one user's endorsement of one collectible;
// at most one exists per (collectible, user) pair.
type JerseyLike struct {
	Id            string
	CollectibleId string
	UserEmail     string
	Created       ntime.NTime
}

func (l *JerseyLike) EntityID() string      { return l.Id }
func (l *JerseyLike) SetEntityID(id string) { l.Id = id }

func (l *JerseyLike) Touch(now ntime.NTime, creating bool) {
	if creating {
		l.Created = now
	}
}

func (l *JerseyLike) Validate() error {
	return validation.ValidateStruct(l,
		validation.Field(&l.CollectibleId, validation.Required),
	)
}
