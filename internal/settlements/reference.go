package settlements

import (
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/dropship-settlements/pkg/errors"
)

const referencePrefix = "lnk_"

// EncodeReference renders the order_nsu sent to the gateway for linkID.
func EncodeReference(linkID uuid.UUID) string {
	return referencePrefix + linkID.String()
}

// DecodeReference recovers the link id from an order_nsu. Only the canonical
// lnk_<uuidv7> form is accepted.
func DecodeReference(reference string) (uuid.UUID, error) {
	raw, ok := strings.CutPrefix(strings.TrimSpace(reference), referencePrefix)
	if !ok {
		return uuid.Nil, malformed(reference, "missing lnk_ prefix")
	}
	if len(raw) != 36 {
		return uuid.Nil, malformed(reference, "link id is not a canonical uuid")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, malformed(reference, "link id is not a uuid")
	}
	if id.Version() != 7 || id.Variant() != uuid.RFC4122 {
		return uuid.Nil, malformed(reference, "link id is not a v7 uuid")
	}
	return id, nil
}

func malformed(reference, reason string) error {
	return pkgerrors.New(pkgerrors.CodeMalformedReference, reason).
		WithDetails(map[string]any{"reference": reference})
}
