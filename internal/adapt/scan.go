package adapt

import (
	"fmt"
	"reflect"
)

// ScanTo loads a wire value and assigns it to dest, which must be a non-nil pointer.
// SQL NULL sets dest to its zero value; a pointer-typed destination becomes nil, which
// is the lossless representation. Numeric destinations narrower than the loaded value
// convert without a range check, matching what the server already validated.
func (r *Registry) ScanTo(data []byte, oid uint32, format int16, dest interface{}) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("scan destination must be a non-nil pointer, got %T", dest)
	}
	elem := rv.Elem()

	if data == nil {
		elem.Set(reflect.Zero(elem.Type()))
		return nil
	}

	if elem.Kind() == reflect.Ptr {
		target := reflect.New(elem.Type().Elem())
		if err := r.ScanTo(data, oid, format, target.Interface()); err != nil {
			return err
		}
		elem.Set(target)
		return nil
	}

	loaded, err := r.Load(data, oid, format)
	if err != nil {
		return err
	}

	lv := reflect.ValueOf(loaded)
	switch {
	case lv.Type().AssignableTo(elem.Type()):
		elem.Set(lv)
	case lv.Type().ConvertibleTo(elem.Type()) && convertible(lv.Kind(), elem.Kind()):
		elem.Set(lv.Convert(elem.Type()))
	default:
		return &LoadError{OID: oid, Format: format, Reason: fmt.Sprintf("cannot assign %T to %s", loaded, elem.Type())}
	}
	return nil
}

// convertible restricts reflect conversions to the sensible numeric/string cases, so a
// stray int does not silently convert to a string of one rune.
func convertible(from, to reflect.Kind) bool {
	if isNumeric(from) && isNumeric(to) {
		return true
	}
	if from == reflect.String && to == reflect.String {
		return true
	}
	if from == reflect.Slice && to == reflect.Slice {
		return true
	}
	if from == reflect.String && to == reflect.Slice {
		return true
	}
	if from == reflect.Slice && to == reflect.String {
		return true
	}
	return false
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
