// Package secret resolves encrypted values referenced from the daemon
// configuration, so credentials handed to job processes never sit in the
// config document in clear text.
package secret

import (
	"context"
	"fmt"
	"sort"

	"github.com/viant/scy"
	_ "github.com/viant/scy/kms/blowfish"
)

// DefaultKey is used when a reference does not name its encryption key.
const DefaultKey = "blowfish://default"

// Ref locates one encrypted value.
type Ref struct {
	URL string `json:"url" yaml:"url"`
	Key string `json:"key,omitempty" yaml:"key,omitempty"`
}

// Service loads secrets through scy.
type Service struct {
	scy *scy.Service
}

// Reveal returns the plain text of ref.
func (s *Service) Reveal(ctx context.Context, ref *Ref) (string, error) {
	if ref == nil || ref.URL == "" {
		return "", fmt.Errorf("secret URL was empty")
	}
	secret, err := s.scy.Load(ctx, scy.NewResource(nil, ref.URL, keyOf(ref)))
	if err != nil {
		return "", fmt.Errorf("failed to load secret from %s: %w", ref.URL, err)
	}
	return secret.String(), nil
}

// Secure encrypts plainText and stores it at ref.
func (s *Service) Secure(ctx context.Context, ref *Ref, plainText string) error {
	secret := scy.NewSecret(plainText, scy.NewResource(nil, ref.URL, keyOf(ref)))
	if err := s.scy.Store(ctx, secret); err != nil {
		return fmt.Errorf("failed to store secret at %s: %w", ref.URL, err)
	}
	return nil
}

// Environment reveals every reference and returns them keyed by variable
// name, merged over base.
func (s *Service) Environment(ctx context.Context, base map[string]string, refs map[string]*Ref) (map[string]string, error) {
	if len(refs) == 0 {
		return base, nil
	}
	ret := make(map[string]string, len(base)+len(refs))
	for k, v := range base {
		ret[k] = v
	}
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value, err := s.Reveal(ctx, refs[name])
		if err != nil {
			return nil, fmt.Errorf("env %s: %w", name, err)
		}
		ret[name] = value
	}
	return ret, nil
}

func keyOf(ref *Ref) string {
	if ref.Key == "" {
		return DefaultKey
	}
	return ref.Key
}

// New creates a secret service
func New() *Service {
	return &Service{scy: scy.New()}
}
