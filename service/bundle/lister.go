package bundle

import (
	"context"

	"github.com/viant/taskd/service/lister"
)

// Lister reports the tasks declared by a bundle manifest.
type Lister struct{}

var _ lister.Lister = Lister{}

// List returns task names or model.ErrCorruptArtifact.
func (Lister) List(_ context.Context, blob []byte) ([]string, error) {
	aBundle, err := Open(blob)
	if err != nil {
		return nil, err
	}
	return aBundle.Tasks(), nil
}
