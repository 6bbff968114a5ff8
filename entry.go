package qcred

import "github.com/kardianos/qcred/qdef"

// Entry is a credential slot bound to one (service, account).
type Entry struct {
	store *Store
	id    qdef.Identity
}

// Entry returns the credential slot for (service, account). Nothing is
// read or written until a method is called.
func (s *Store) Entry(service, account string) (*Entry, error) {
	id := qdef.Identity{Service: service, Account: account}
	if err := id.Validate(); err != nil {
		return nil, qdef.Wrap(qdef.KindInvalidArgument, "qcred.entry", "", err)
	}
	return &Entry{store: s, id: id}, nil
}

func (e *Entry) SetPassword(password string) error {
	return e.store.SetPassword(e.id.Service, e.id.Account, password)
}

func (e *Entry) GetPassword() (string, error) {
	return e.store.GetPassword(e.id.Service, e.id.Account)
}

func (e *Entry) SetSecret(secret []byte) error {
	return e.store.SetSecret(e.id.Service, e.id.Account, secret)
}

func (e *Entry) GetSecret() ([]byte, error) {
	return e.store.GetSecret(e.id.Service, e.id.Account)
}

func (e *Entry) DeletePassword() error {
	return e.store.DeletePassword(e.id.Service, e.id.Account)
}

// Exists reports whether the slot holds a credential.
func (e *Entry) Exists() (bool, error) {
	return e.store.Exists(e.id.Service, e.id.Account)
}

// Specifiers returns the service and account the entry was created with.
func (e *Entry) Specifiers() (service, account string) {
	return e.id.Service, e.id.Account
}

func (e *Entry) String() string {
	return e.id.String()
}
