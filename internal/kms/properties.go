package kms

import (
	"os"

	"github.com/outpostlabs/kmscore/internal/kmsabi"
)

// propertyValue pairs a property's definition with its last-read value.
type propertyValue struct {
	def   kmsabi.PropertyDefinition
	value uint64
}

// propertyBag translates the kernel's dynamic, per-build property
// namespace into a name-keyed cache. It caches
// definitions forever (property ids/enums are immutable for the life of
// the device) and refreshes values on demand.
type propertyBag struct {
	objID   uint32
	objType uint32
	props   map[string]propertyValue
}

// collect fetches every property on objID and resolves each to its
// definition, populating a fresh bag.
func collect(f *os.File, objID, objType uint32) (*propertyBag, error) {
	ids, values, err := kmsabi.ObjGetProperties(f, objID, objType)
	if err != nil {
		return nil, &UpdatePropertiesError{Cause: err}
	}
	bag := &propertyBag{objID: objID, objType: objType, props: make(map[string]propertyValue, len(ids))}
	for i, id := range ids {
		def, err := kmsabi.GetProperty(f, id)
		if err != nil {
			return nil, &UpdatePropertiesError{Cause: err}
		}
		bag.props[def.Name] = propertyValue{def: def, value: values[i]}
	}
	return bag, nil
}

// refresh re-reads only the values of already-known properties, used
// during resume, since the kernel may have reset values across a VT
// switch, without re-resolving names to ids.
func (b *propertyBag) refresh(f *os.File) error {
	ids, values, err := kmsabi.ObjGetProperties(f, b.objID, b.objType)
	if err != nil {
		return &UpdatePropertiesError{Cause: err}
	}
	byID := make(map[uint32]uint64, len(ids))
	for i, id := range ids {
		byID[id] = values[i]
	}
	for name, pv := range b.props {
		if v, ok := byID[pv.def.ID]; ok {
			pv.value = v
			b.props[name] = pv
		}
	}
	return nil
}

func (b *propertyBag) getU64(name string) (id uint32, value uint64, err error) {
	pv, ok := b.props[name]
	if !ok {
		return 0, 0, &MissingPropertyError{Name: name}
	}
	return pv.def.ID, pv.value, nil
}

func (b *propertyBag) getBool(name string) (id uint32, value bool, err error) {
	i, v, err := b.getU64(name)
	return i, v != 0, err
}

// getEnum resolves an enum property's numeric value to the caller-supplied
// set of recognized variant names, returning InvalidEnumValue if the
// kernel's value doesn't match any variant the caller knows about
// §4.1 errors: "InvalidEnumValue when an enum property's value does not
// match any known variant").
func (b *propertyBag) getEnum(name string, variants map[string]uint64) (id uint32, variant string, err error) {
	pv, ok := b.props[name]
	if !ok {
		return 0, "", &MissingPropertyError{Name: name}
	}
	for vn, vv := range variants {
		if vv == pv.value {
			return pv.def.ID, vn, nil
		}
	}
	// Fall back to resolving by name against the kernel's own enum table,
	// in case the caller's variant set is stale relative to this kernel
	// build (new enum tag added upstream).
	for vn, vv := range pv.def.Enums {
		if vv == pv.value {
			if _, known := variants[vn]; known {
				return pv.def.ID, vn, nil
			}
		}
	}
	return 0, "", &InvalidEnumValueError{Name: name, Value: pv.value}
}

func (b *propertyBag) getBlob(f *os.File, name string) (id uint32, blobID uint32, data []byte, err error) {
	i, v, err := b.getU64(name)
	if err != nil {
		return 0, 0, nil, err
	}
	blobID = uint32(v)
	data, err = kmsabi.GetPropBlob(f, blobID)
	if err != nil {
		return i, blobID, nil, err
	}
	return i, blobID, data, nil
}

// id returns a property's numeric handle without reading its value,
// useful for building atomic-commit changesets for write-only properties
// (e.g. a plane's fb_id before the plane has ever had a framebuffer).
func (b *propertyBag) id(name string) (uint32, error) {
	pv, ok := b.props[name]
	if !ok {
		return 0, &MissingPropertyError{Name: name}
	}
	return pv.def.ID, nil
}
