package wire

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/campusgig/messaging/internal/domain"
)

// UserRef is a participant reference as it travels on the wire: either a bare
// id string or a populated {_id, name, image} object.
type UserRef struct {
	ID    string
	Name  string
	Image string
}

type userObject struct {
	ID    string `json:"_id"`
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
}

func (u UserRef) populated() bool {
	return u.Name != "" || u.Image != ""
}

func (u UserRef) MarshalJSON() ([]byte, error) {
	if !u.populated() {
		return json.Marshal(u.ID)
	}
	return json.Marshal(userObject{ID: u.ID, Name: u.Name, Image: u.Image})
}

func (u *UserRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*u = UserRef{}
		return nil
	}

	if b[0] == '"' {
		var id string
		if err := json.Unmarshal(b, &id); err != nil {
			return err
		}
		*u = UserRef{ID: id}
		return nil
	}

	var obj struct {
		ID    string `json:"_id"`
		AltID string `json:"id"`
		Name  string `json:"name"`
		Image string `json:"image"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	id := obj.ID
	if id == "" {
		id = obj.AltID
	}
	*u = UserRef{ID: id, Name: obj.Name, Image: obj.Image}
	return nil
}

// Message is the JSON representation used by the HTTP API and the event channel.
type Message struct {
	ID        string    `json:"_id"`
	Sender    UserRef   `json:"senderId"`
	Receiver  UserRef   `json:"receiverId"`
	Content   string    `json:"content"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// UnmarshalJSON also accepts the document-store field names "sender" and
// "receiver" for the participant references.
func (m *Message) UnmarshalJSON(b []byte) error {
	var aux struct {
		ID         string    `json:"_id"`
		SenderID   *UserRef  `json:"senderId"`
		ReceiverID *UserRef  `json:"receiverId"`
		Sender     *UserRef  `json:"sender"`
		Receiver   *UserRef  `json:"receiver"`
		Content    string    `json:"content"`
		Read       bool      `json:"read"`
		CreatedAt  time.Time `json:"createdAt"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	*m = Message{
		ID:        aux.ID,
		Content:   aux.Content,
		Read:      aux.Read,
		CreatedAt: aux.CreatedAt,
	}
	m.Sender = firstRef(aux.SenderID, aux.Sender)
	m.Receiver = firstRef(aux.ReceiverID, aux.Receiver)
	return nil
}

func firstRef(refs ...*UserRef) UserRef {
	for _, r := range refs {
		if r != nil && r.ID != "" {
			return *r
		}
	}
	return UserRef{}
}

// Normalize reduces a wire message to the canonical id-only domain form.
// Participant display data is dropped.
func (m Message) Normalize() *domain.Message {
	return &domain.Message{
		ID:         m.ID,
		SenderID:   m.Sender.ID,
		ReceiverID: m.Receiver.ID,
		Content:    m.Content,
		Read:       m.Read,
		CreatedAt:  m.CreatedAt,
	}
}

func FromDomain(msg *domain.Message) Message {
	return Message{
		ID:        msg.ID,
		Sender:    refFor(msg.SenderID, msg.Sender),
		Receiver:  refFor(msg.ReceiverID, msg.Receiver),
		Content:   msg.Content,
		Read:      msg.Read,
		CreatedAt: msg.CreatedAt,
	}
}

func refFor(id string, u *domain.User) UserRef {
	if u == nil {
		return UserRef{ID: id}
	}
	return UserRef{ID: id, Name: u.Name, Image: u.Image}
}
