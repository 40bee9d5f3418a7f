package adapter

import (
	"fmt"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// IDGenerator returns a fresh identifier.
type IDGenerator func() (string, error)

// NewIDGenerator returns the generator named by kind: "uuid" (the default)
// or "nanoid".
func NewIDGenerator(kind string) (IDGenerator, error) {
	switch kind {
	case "", "uuid":
		return func() (string, error) { return uuid.NewString(), nil }, nil
	case "nanoid":
		return func() (string, error) { return gonanoid.New() }, nil
	}
	return nil, fmt.Errorf("unknown id generator %q", kind)
}
