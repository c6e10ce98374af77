package berth

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// In is a marker type that should be embedded in structs to indicate
// they are parameter objects. Fields of the struct will be treated as
// dependencies to inject.
//
// Example:
//
//	type TimerParams struct {
//	    berth.In
//
//	    Clock  Clock
//	    Logger *Logger `optional:"true"`
//	    Store  Store   `name:"primary"`
//	}
type In struct{}

var (
	inType    = reflect.TypeOf(In{})
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// constructorInfo holds analyzed constructor metadata
type constructorInfo struct {
	fn       reflect.Value
	fnType   reflect.Type
	params   []paramInfo
	result   reflect.Type
	hasError bool
}

// paramInfo describes one dependency: a constructor parameter, a field of an
// In struct, or an injectable field of a struct built by Construct.
type paramInfo struct {
	typ      reflect.Type
	name     string      // From `name:"..."` or `inject:"..."`, empty for type-based lookup
	optional bool        // From `optional:"true"` tag
	index    int         // Position in function parameters or struct field index
	isIn     bool        // Whether this is an In struct (expanded into multiple deps)
	inFields []paramInfo // Expanded fields if isIn is true
}

func (p paramInfo) key() TypeKey {
	return TypeKey{typ: p.typ, name: p.name}
}

// analyzeConstructor inspects a constructor function. The first result is
// the provided type; an error may follow as the last result.
func analyzeConstructor(constructor any) (*constructorInfo, error) {
	if constructor == nil {
		return nil, errors.New("constructor must not be nil")
	}

	fnValue := reflect.ValueOf(constructor)
	fnType := fnValue.Type()

	if fnType.Kind() != reflect.Func {
		return nil, fmt.Errorf("constructor must be a function, got %s", fnType)
	}
	if fnType.IsVariadic() {
		return nil, errors.New("variadic constructors are not supported")
	}

	info := &constructorInfo{
		fn:     fnValue,
		fnType: fnType,
	}

	for i := 0; i < fnType.NumIn(); i++ {
		param, err := analyzeParam(fnType.In(i), i)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		info.params = append(info.params, param)
	}

	switch fnType.NumOut() {
	case 1:
		if fnType.Out(0) == errorType {
			return nil, errors.New("constructor must return a non-error value")
		}
	case 2:
		if fnType.Out(1) != errorType {
			return nil, errors.New("second return value must be error")
		}
		info.hasError = true
	default:
		return nil, fmt.Errorf("constructor must return (T) or (T, error), got %d results", fnType.NumOut())
	}
	info.result = fnType.Out(0)

	return info, nil
}

// analyzeParam analyzes a single parameter type
func analyzeParam(t reflect.Type, index int) (paramInfo, error) {
	param := paramInfo{
		typ:   t,
		index: index,
	}

	if isInStruct(t) {
		param.isIn = true
		fields, err := expandInStruct(t)
		if err != nil {
			return param, err
		}
		param.inFields = fields
	}

	return param, nil
}

// isInStruct checks if a type embeds berth.In
func isInStruct(t reflect.Type) bool {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t.Kind() != reflect.Struct {
		return false
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous && (field.Type == inType || isInStruct(field.Type)) {
			return true
		}
	}
	return false
}

// expandInStruct expands an In struct into its field dependencies
func expandInStruct(t reflect.Type) ([]paramInfo, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	var params []paramInfo

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		// Skip the embedded In marker
		if field.Anonymous && (field.Type == inType || isInStruct(field.Type)) {
			continue
		}

		if !field.IsExported() {
			continue
		}

		params = append(params, paramInfo{
			typ:      field.Type,
			name:     field.Tag.Get("name"),
			optional: strings.EqualFold(field.Tag.Get("optional"), "true"),
			index:    i,
		})
	}

	return params, nil
}

// injectableFields lists the exported fields of struct t tagged `inject`.
// The tag value, when set, names the dependency.
func injectableFields(t reflect.Type) []paramInfo {
	var params []paramInfo

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		name, ok := field.Tag.Lookup("inject")
		if !ok || !field.IsExported() {
			continue
		}

		params = append(params, paramInfo{
			typ:      field.Type,
			name:     name,
			optional: strings.EqualFold(field.Tag.Get("optional"), "true"),
			index:    i,
		})
	}

	return params
}

// call invokes the constructor with already resolved arguments.
func (c *constructorInfo) call(args []reflect.Value) (any, error) {
	results := c.fn.Call(args)

	if c.hasError {
		if errResult := results[1]; !errResult.IsNil() {
			return nil, errResult.Interface().(error)
		}
	}

	return results[0].Interface(), nil
}
