package messages

import (
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/silvestri/maglia/pkg/ntime"
	"github.com/silvestri/maglia/pkg/users"
)

// ConversationID derives the thread identifier for a two-party exchange: the
// participants' addresses, lower cased, sorted and joined. The identity is
// therefore independent of who initiated the conversation. The separator can't
// occur in an address the email validation rules accept.
func ConversationID(a, b string) string {
	var participants = []string{strings.ToLower(a), strings.ToLower(b)}
	sort.Strings(participants)
	return strings.Join(participants, "|")
}

// Message is one direct message in a conversation; the read flag belongs to the receiver.
type Message struct {
	Id             string
	SenderEmail    string
	ReceiverEmail  string
	ConversationId string
	Body           string
	Read           bool
	Created        ntime.NTime
}

func (m *Message) EntityID() string      { return m.Id }
func (m *Message) SetEntityID(id string) { m.Id = id }

func (m *Message) Touch(now ntime.NTime, creating bool) {
	if creating {
		m.Created = now
	}
}

func (m *Message) Validate() error {
	return validation.ValidateStruct(m,
		validation.Field(&m.ReceiverEmail, users.EmailRules...),
		validation.Field(&m.Body, validation.Required, validation.Length(1, 5000)),
	)
}
