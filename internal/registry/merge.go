package registry

import (
	"encoding/json"
	"fmt"
)

// MergeResult reports what MergeStatic changed
type MergeResult struct {
	// Overridden lists static names that replaced a dynamic entry
	Overridden []string
	// ReplacedExtra lists "name@version" pairs whose extra was not an object
	// and was replaced by a fresh marker object
	ReplacedExtra []string
}

// MergeStatic applies the static package set onto dst. Every static version is
// tagged with the provenance marker and each static PackageEntry replaces any
// entry of the same name in dst as a whole. Static input is not modified.
func MergeStatic(dst, static Packages) (MergeResult, error) {
	var result MergeResult
	for _, name := range static.Names() {
		entry := static[name]
		marked := make(PackageEntry, len(entry))
		for _, version := range entry.Versions() {
			desc, replaced, err := MarkStatic(entry[version])
			if err != nil {
				return result, fmt.Errorf("failed to mark static package %s@%s: %w", name, version, err)
			}
			if replaced {
				result.ReplacedExtra = append(result.ReplacedExtra, name+"@"+version)
			}
			marked[version] = desc
		}
		if _, exists := dst[name]; exists {
			result.Overridden = append(result.Overridden, name)
		}
		dst[name] = marked
	}
	return result, nil
}

// MarkStatic returns a copy of d whose extra metadata carries the static
// provenance marker. The marker key starts as "_source" and gains a leading
// underscore for as long as the key is already taken. The boolean reports
// that an existing non-object extra value was discarded.
func MarkStatic(d Descriptor) (Descriptor, bool, error) {
	out := d.Clone()
	if out == nil {
		out = Descriptor{}
	}

	extra := map[string]json.RawMessage{}
	replaced := false
	if raw, ok := out[FieldExtra]; ok && !isJSONNull(raw) {
		if err := json.Unmarshal(raw, &extra); err != nil || extra == nil {
			extra = map[string]json.RawMessage{}
			replaced = true
		}
	}

	key := StaticMarkerKey
	for {
		if _, taken := extra[key]; !taken {
			break
		}
		key = "_" + key
	}
	extra[key], _ = json.Marshal(StaticMarkerValue)

	if err := out.Set(FieldExtra, extra); err != nil {
		return nil, false, err
	}
	return out, replaced, nil
}

// FilterEmpty removes packages without any versions
func FilterEmpty(p Packages) Packages {
	out := make(Packages, len(p))
	for name, entry := range p {
		if len(entry) == 0 {
			continue
		}
		out[name] = entry
	}
	return out
}

func isJSONNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
