package boxoffice

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

const referencePrefix = "BX-"

// ReferenceGenerator mints payment references.
type ReferenceGenerator func() Reference

// NewSnowflakeReferences mints time-ordered references unique per node.
func NewSnowflakeReferences(nodeID int64) (ReferenceGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("%w: snowflake node: %v", ErrInvalidServiceConfig, err)
	}
	return func() Reference {
		return Reference{value: referencePrefix + strings.ToUpper(node.Generate().Base36())}
	}, nil
}

func randomReference() Reference {
	return Reference{value: referencePrefix + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))}
}
