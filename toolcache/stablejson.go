package toolcache

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// stableJSON renders v as a deterministic string suitable for hashing:
// object keys are sorted, arrays preserve order, and a handful of Go types
// that have no canonical JSON form are given one explicitly. Cycles and
// unserializable values (functions, channels) are reported as errors rather
// than panicking, so a bad tool argument only disables caching for that call.
func stableJSON(v any) (string, error) {
	var b strings.Builder
	seen := make(map[any]bool)
	if err := writeStable(&b, v, seen); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeStable(b *strings.Builder, v any, seen map[any]bool) error {
	switch x := v.(type) {
	case nil:
		b.WriteString("null")
		return nil
	case bool:
		if x {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
		return nil
	case string:
		b.WriteString(strconv.Quote(x))
		return nil
	case int:
		b.WriteString(strconv.Itoa(x))
		return nil
	case int64:
		b.WriteString(strconv.FormatInt(x, 10))
		return nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("toolcache: non-finite number is not cacheable")
		}
		b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
		return nil
	// bigint has no native Go equivalent; callers pass *big.Int-shaped
	// values through as a quoted decimal already, so strings cover it.
	case time.Time:
		b.WriteString(strconv.Quote(x.UTC().Format(time.RFC3339Nano)))
		return nil
	case *regexp.Regexp:
		b.WriteString(strconv.Quote("/" + x.String() + "/"))
		return nil
	case []any:
		return writeStableArray(b, x, seen)
	case map[string]any:
		return writeStableObject(b, x, seen)
	default:
		return fmt.Errorf("toolcache: value of type %T is not cacheable", v)
	}
}

func writeStableArray(b *strings.Builder, arr []any, seen map[any]bool) error {
	if seen[fmt.Sprintf("%p", arr)] {
		return fmt.Errorf("toolcache: cyclic value is not cacheable")
	}
	if len(arr) > 0 {
		seen[fmt.Sprintf("%p", arr)] = true
		defer delete(seen, fmt.Sprintf("%p", arr))
	}
	b.WriteByte('[')
	for i, e := range arr {
		if i > 0 {
			b.WriteByte(',')
		}
		if err := writeStable(b, e, seen); err != nil {
			return err
		}
	}
	b.WriteByte(']')
	return nil
}

func writeStableObject(b *strings.Builder, obj map[string]any, seen map[any]bool) error {
	ptr := fmt.Sprintf("%p", obj)
	if seen[ptr] {
		return fmt.Errorf("toolcache: cyclic value is not cacheable")
	}
	seen[ptr] = true
	defer delete(seen, ptr)

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(k))
		b.WriteByte(':')
		if err := writeStable(b, obj[k], seen); err != nil {
			return err
		}
	}
	b.WriteByte('}')
	return nil
}
