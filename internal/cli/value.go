package cli

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/latticekv/lattice/internal/keycodec"
	"github.com/latticekv/lattice/internal/kvvalue"
)

func encodeKeyArg(k keycodec.Key) ([]byte, error) {
	return keycodec.Encode(k)
}

// renderKey formats a Key for human-readable CLI output, one part per
// slash-separated segment.
func renderKey(k keycodec.Key) string {
	parts := make([]string, len(k))
	for i, p := range k {
		switch p.Kind() {
		case keycodec.KindString:
			parts[i] = p.AsString()
		case keycodec.KindBytes:
			parts[i] = base64.StdEncoding.EncodeToString(p.AsBytes())
		case keycodec.KindInt:
			parts[i] = p.AsInt().String()
		case keycodec.KindFloat64:
			parts[i] = strconv.FormatFloat(p.AsFloat64(), 'g', -1, 64)
		case keycodec.KindFalse:
			parts[i] = "false"
		case keycodec.KindTrue:
			parts[i] = "true"
		}
	}
	return strings.Join(parts, "/")
}

// describeValue renders a kvvalue.Value for human-readable CLI output.
func describeValue(v kvvalue.Value) string {
	switch val := v.(type) {
	case kvvalue.U64:
		return fmt.Sprintf("%d (u64)", uint64(val))
	case kvvalue.RawBytes:
		return fmt.Sprintf("%s (bytes, base64)", base64.StdEncoding.EncodeToString(val))
	case kvvalue.V8Bytes:
		return fmt.Sprintf("%s (opaque, base64)", base64.StdEncoding.EncodeToString(val))
	default:
		return fmt.Sprintf("%v", v)
	}
}
