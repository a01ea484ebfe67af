/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
)

var errNotStruct = errors.New("input must be a struct or pointer to struct")

// FilterSensitiveFields converts a struct into a map keyed by JSON names,
// leaving out every field tagged `sensitive:"true"`. It is used before a
// payload or configuration is written to a log.
func FilterSensitiveFields(input interface{}) (map[string]interface{}, error) {
	if input == nil {
		return map[string]interface{}{}, nil
	}

	switch result := filterRecursively(reflect.ValueOf(input)).(type) {
	case nil:
		return map[string]interface{}{}, nil
	case map[string]interface{}:
		return result, nil
	default:
		return nil, errNotStruct
	}
}

var marshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()

func filterRecursively(rv reflect.Value) interface{} {
	if !rv.IsValid() {
		return nil
	}

	if rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}

		if rv.Type().Implements(marshalerType) {
			return rv.Interface()
		}

		return filterRecursively(rv.Elem())
	}

	// Types with their own encoding (time.Time, durations) are kept whole.
	if rv.Type().Implements(marshalerType) {
		return rv.Interface()
	}

	switch rv.Kind() {
	case reflect.Struct:
		return filterStruct(rv)

	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}

		result := make([]interface{}, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			result[i] = filterRecursively(rv.Index(i))
		}

		return result

	case reflect.Map:
		result := make(map[string]interface{}, rv.Len())

		iter := rv.MapRange()
		for iter.Next() {
			if key, ok := iter.Key().Interface().(string); ok {
				result[key] = filterRecursively(iter.Value())
			}
		}

		return result

	default:
		return rv.Interface()
	}
}

func filterStruct(rv reflect.Value) map[string]interface{} {
	rt := rv.Type()
	result := make(map[string]interface{}, rt.NumField())

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)

		if !field.IsExported() || field.Tag.Get("sensitive") == "true" {
			continue
		}

		name, opts, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" && opts == "" {
			continue
		}

		if name == "" {
			name = field.Name
		}

		fv := rv.Field(i)
		if strings.Contains(opts, "omitempty") && fv.IsZero() {
			continue
		}

		result[name] = filterRecursively(fv)
	}

	return result
}
