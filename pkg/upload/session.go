package upload

import (
	"errors"

	"github.com/menta2k/webar-studio/pkg/types"
)

var errSessionConsumed = errors.New("upload session already consumed")

// Session is one upload attempt: the file identity plus the credential the
// backend issued for it. A session is consumed by exactly one transfer.
type Session struct {
	FileName    string
	ContentType string
	Credential  types.Credential

	consumed bool
}

// PublicURL returns the URL the object will be reachable at once stored
func (s *Session) PublicURL() string {
	return s.Credential.PublicURL
}

// take hands out the credential once
func (s *Session) take() (types.Credential, error) {
	if s.consumed {
		return types.Credential{}, errSessionConsumed
	}
	s.consumed = true
	return s.Credential, nil
}
