package tic

import "reflect"

// Absent is type of Removed marker.
type Absent struct{}

// MarshalJSON encodes removed key as null.
func (Absent) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

func (Absent) String() string { return "<removed>" }

// Removed marks key present in previous frame and missing in current.
// It is distinct from nil value.
var Removed = Absent{}

// Diff returns new and changed values of current compared to previous,
// removed keys mapped to Removed. Only mappings are compared recursively,
// other values (sequences included) are replaced whole.
// Empty previous yields shallow copy of current.
func Diff(previous, current Frame) Frame {
	return Frame(diffMap(previous, current))
}

func diffMap(base, object map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	if len(base) == 0 {
		for k, v := range object {
			result[k] = v
		}
		return result
	}
	for k, v := range object {
		old, ok := base[k]
		if !ok {
			result[k] = v
			continue
		}
		if equal(old, v) {
			continue
		}
		om, oldIsMap := asMap(old)
		nm, newIsMap := asMap(v)
		if oldIsMap && newIsMap {
			result[k] = diffMap(om, nm)
		} else {
			result[k] = v
		}
	}
	for k := range base {
		if _, ok := object[k]; !ok {
			result[k] = Removed
		}
	}
	return result
}

// Patch applies difference to copy of base: Removed deletes key,
// mappings merge recursively, anything else overwrites.
func Patch(base, diff Frame) Frame {
	return Frame(patchMap(base, diff))
}

func patchMap(base, diff map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(base)+len(diff))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range diff {
		if _, ok := v.(Absent); ok {
			delete(result, k)
			continue
		}
		dm, diffIsMap := asMap(v)
		bm, baseIsMap := asMap(result[k])
		if diffIsMap && baseIsMap {
			result[k] = patchMap(bm, dm)
		} else {
			result[k] = v
		}
	}
	return result
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case Frame:
		return m, m != nil
	case map[string]interface{}:
		return m, m != nil
	}
	return nil, false
}

func asSlice(v interface{}) ([]interface{}, bool) {
	s, ok := v.([]interface{})
	return s, ok
}

// equal is structural equality over mappings, sequences and scalars.
func equal(a, b interface{}) bool {
	if am, ok := asMap(a); ok {
		bm, ok := asMap(b)
		if !ok || len(am) != len(bm) {
			return false
		}
		for k, av := range am {
			bv, ok := bm[k]
			if !ok || !equal(av, bv) {
				return false
			}
		}
		return true
	}
	if as, ok := asSlice(a); ok {
		bs, ok := asSlice(b)
		if !ok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !equal(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	// typed slices and other uncomparable values
	return reflect.DeepEqual(a, b)
}
