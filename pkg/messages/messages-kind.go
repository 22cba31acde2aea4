package messages

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/silvestri/maglia/pkg/entities"
)

// MessageKind maps direct messages onto the uniform contract. Conversation
// identity and sender are derived server side; listing is scoped to the
// caller's own conversations.
func MessageKind() entities.Kind[*Message] {
	return entities.Kind[*Message]{
		Name:    "Message",
		Table:   "messages",
		Columns: []string{"sender_email", "receiver_email", "conversation_id", "body", "read", "created"},
		New:     func() *Message { return &Message{} },
		Scan: func(row entities.Scanner) (*Message, error) {
			var m Message
			err := row.Scan(&m.Id, &m.SenderEmail, &m.ReceiverEmail, &m.ConversationId,
				&m.Body, &m.Read, &m.Created)
			return &m, err
		},
		Args: func(m *Message) []any {
			return []any{m.SenderEmail, m.ReceiverEmail, m.ConversationId, m.Body, m.Read, m.Created}
		},
		Prepare: func(tx *sql.Tx, actor entities.Actor, m *Message) error {
			m.SenderEmail = actor.Email
			m.ReceiverEmail = strings.ToLower(m.ReceiverEmail)
			m.ConversationId = ConversationID(m.SenderEmail, m.ReceiverEmail)
			m.Read = false

			if strings.EqualFold(m.SenderEmail, m.ReceiverEmail) {
				return fmt.Errorf("%w: can't message oneself", entities.ErrValidation)
			}

			// the recipient must exist and accept direct messages
			var acceptsMessages = false
			err := tx.QueryRow("SELECT accepts_messages FROM users WHERE email = ?", m.ReceiverEmail).
				Scan(&acceptsMessages)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: unknown recipient %q", entities.ErrValidation, m.ReceiverEmail)
			}
			if err != nil {
				return err
			}
			if !acceptsMessages {
				return fmt.Errorf("%w: recipient doesn't accept messages", entities.ErrValidation)
			}
			return nil
		},
		Authorize: func(actor entities.Actor, op entities.Op, m *Message) error {
			switch op {
			case entities.OpUpdate:
				// only the receiver flips the read flag
				if actor.Email != m.ReceiverEmail {
					return entities.ErrForbidden
				}
			case entities.OpDelete:
				if actor.Email != m.SenderEmail && actor.Email != m.ReceiverEmail && !actor.IsAdmin() {
					return entities.ErrForbidden
				}
			}
			return nil
		},
		Readable: func(actor entities.Actor, m *Message) bool {
			return actor.Email == m.SenderEmail || actor.Email == m.ReceiverEmail || actor.IsAdmin()
		},
	}
}
