package boxoffice

import (
	"crypto/sha256"
	"encoding/base32"
	"strconv"
	"strings"
)

var unitCodeEncoding = base32.NewEncoding("0123456789ABCDEFGHJKMNPQRSTVWXYZ").WithPadding(base32.NoPadding)

// MintUnitCode derives the human-readable code for the sequence-th unit of a transaction.
// The same reference and sequence always produce the same code.
func MintUnitCode(kind InventoryKind, reference Reference, sequence int64) string {
	seed := reference.String() + unitCodeSeedDelimiter + strconv.FormatInt(sequence, 10)
	digest := sha256.Sum256([]byte(seed))
	encoded := unitCodeEncoding.EncodeToString(digest[:])

	prefix := unitCodePrefixTicket
	if kind == InventoryKindVote {
		prefix = unitCodePrefixVote
	}
	groups := make([]string, 0, unitCodeGroups+1)
	groups = append(groups, prefix)
	for index := 0; index < unitCodeGroups; index++ {
		start := index * unitCodeGroupLength
		groups = append(groups, encoded[start:start+unitCodeGroupLength])
	}
	return strings.Join(groups, unitCodeDelimiter)
}
