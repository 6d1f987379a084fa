package upstream

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/withObsrvr/tour-discovery/pkg/storage"
)

// Credentials authenticate against the upstream service.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (c Credentials) Empty() bool {
	return c.Username == "" || c.Password == ""
}

// CredentialProvider supplies upstream credentials.
type CredentialProvider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// StaticCredentials returns fixed credentials, typically from settings or
// the environment.
type StaticCredentials Credentials

func (s StaticCredentials) Credentials(ctx context.Context) (Credentials, error) {
	c := Credentials(s)
	if c.Empty() {
		return Credentials{}, ErrMissingCredentials
	}
	return c, nil
}

// StoredCredentials reads a {"username","password"} JSON document from
// object storage.
type StoredCredentials struct {
	Store storage.Store
	Key   string
}

func (s StoredCredentials) Credentials(ctx context.Context) (Credentials, error) {
	data, found, err := s.Store.Get(ctx, s.Key)
	if err != nil {
		return Credentials{}, errors.Wrapf(err, "failed to read credentials %s", s.Key)
	}
	if !found {
		return Credentials{}, errors.Wrapf(ErrMissingCredentials, "no credentials at %s", s.Key)
	}
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return Credentials{}, errors.Wrapf(err, "failed to parse credentials %s", s.Key)
	}
	if c.Empty() {
		return Credentials{}, errors.Wrapf(ErrMissingCredentials, "incomplete credentials at %s", s.Key)
	}
	return c, nil
}
