package content

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/silvestri/maglia/pkg/entities"
	"github.com/silvestri/maglia/pkg/ntime"
)

// SiteContent holds one editable static page, keyed by content type:
// terms of service, privacy policy, about text and so on.
type SiteContent struct {
	Id          string
	ContentType string
	Body        string
	Updated     ntime.NTime
}

func (sc *SiteContent) EntityID() string      { return sc.Id }
func (sc *SiteContent) SetEntityID(id string) { sc.Id = id }

func (sc *SiteContent) Touch(now ntime.NTime, creating bool) {
	sc.Updated = now
}

func (sc *SiteContent) Validate() error {
	return validation.ValidateStruct(sc,
		validation.Field(&sc.ContentType, validation.Required, validation.Length(1, 50)),
	)
}

// Kind registers site content with the uniform contract; everyone may read the
// pages, only admins edit them.
func Kind() entities.Kind[*SiteContent] {
	return entities.Kind[*SiteContent]{
		Name:    "SiteContent",
		Table:   "site_content",
		Columns: []string{"content_type", "body", "updated"},
		New:     func() *SiteContent { return &SiteContent{} },
		Scan: func(row entities.Scanner) (*SiteContent, error) {
			var sc SiteContent
			err := row.Scan(&sc.Id, &sc.ContentType, &sc.Body, &sc.Updated)
			return &sc, err
		},
		Args: func(sc *SiteContent) []any {
			return []any{sc.ContentType, sc.Body, sc.Updated}
		},
		Authorize: func(actor entities.Actor, op entities.Op, sc *SiteContent) error {
			switch op {
			case entities.OpCreate, entities.OpUpdate, entities.OpDelete:
				if !actor.IsAdmin() {
					return entities.ErrForbidden
				}
			}
			return nil
		},
	}
}
