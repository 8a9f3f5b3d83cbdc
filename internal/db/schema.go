package db

import (
	"fmt"
	"reflect"
	"sync"

	"gorm.io/gorm/schema"
)

var schemaCache = &sync.Map{}

func parse(model interface{}) (*schema.Schema, error) {
	s, err := schema.Parse(model, schemaCache, schema.NamingStrategy{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema of %T: %w", model, err)
	}
	return s, nil
}

// TableColumns returns the database columns of each model, keyed by table name.
func TableColumns(models ...interface{}) (map[string][]string, error) {
	out := make(map[string][]string, len(models))
	for _, m := range models {
		s, err := parse(m)
		if err != nil {
			return nil, err
		}
		out[s.Table] = append([]string(nil), s.DBNames...)
	}
	return out, nil
}

// ColumnValues reads the named columns of a model. Nil pointers come back as
// nil and non-nil pointers are dereferenced.
func ColumnValues(model interface{}, columns []string) (map[string]interface{}, error) {
	s, err := parse(model)
	if err != nil {
		return nil, err
	}

	rv := reflect.Indirect(reflect.ValueOf(model))
	out := make(map[string]interface{}, len(columns))
	for _, column := range columns {
		field := s.LookUpField(column)
		if field == nil {
			return nil, fmt.Errorf("%s has no column %q", s.Table, column)
		}

		fv := rv.FieldByIndex(field.StructField.Index)
		if fv.Kind() == reflect.Ptr {
			if fv.IsNil() {
				out[column] = nil
				continue
			}
			fv = fv.Elem()
		}
		out[column] = fv.Interface()
	}
	return out, nil
}
