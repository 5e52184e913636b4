package cli

import (
	"fmt"

	"github.com/latticekv/lattice/internal/keycodec"
)

// parseKeyParts turns CLI positional arguments (or a YAML batch file's key
// list) into a Key. Every part is a string part: the scripting surface
// trades the full typed-part repertoire for something a shell one-liner
// can express directly. The `apply` batch format uses the same string-only
// key lists; int/float/bool/bytes parts are available only through the
// keycodec constructors in library code.
func parseKeyParts(parts []string) (keycodec.Key, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("key must have at least one part")
	}
	k := make(keycodec.Key, len(parts))
	for i, p := range parts {
		k[i] = keycodec.String(p)
	}
	return k, nil
}
