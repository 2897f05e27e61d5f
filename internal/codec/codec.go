// Package codec converts documents to and from canonical MongoDB Extended JSON.
//
// Values without a native JSON form carry an explicit type marker, for example
// {"$binary":{"base64":"...","subType":"00"}} or {"$timestamp":{"t":1,"i":2}},
// and numbers keep their width ({"$numberInt":"7"}, {"$numberLong":"7"}), so
// Unmarshal(Marshal(d)) reproduces d exactly. Values outside the driver's own
// decoded types are refused rather than coerced. One document is one line.
package codec

import (
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kadirbelkuyu/docsnap/internal/docstore"
)

// SerializationError names the field whose value cannot be encoded.
type SerializationError struct {
	Path string
	Err  error
}

func (e *SerializationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("serialization failed: %v", e.Err)
	}
	return fmt.Sprintf("serialization failed at %q: %v", e.Path, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

func Marshal(doc docstore.Document) ([]byte, error) {
	if err := Validate(doc); err != nil {
		return nil, err
	}

	data, err := bson.MarshalExtJSON(doc, true, false)
	if err != nil {
		return nil, &SerializationError{Err: err}
	}
	return data, nil
}

func Unmarshal(data []byte) (docstore.Document, error) {
	var doc bson.D
	if err := bson.UnmarshalExtJSON(data, true, &doc); err != nil {
		return nil, &SerializationError{Err: fmt.Errorf("invalid record: %w", err)}
	}
	return doc, nil
}

// Validate walks doc and reports the first value that has no BSON representation.
func Validate(doc docstore.Document) error {
	return validateDocument("", doc)
}

func validateDocument(prefix string, doc bson.D) error {
	for _, elem := range doc {
		path := joinPath(prefix, elem.Key)
		if strings.IndexByte(elem.Key, 0) >= 0 {
			return &SerializationError{Path: path, Err: fmt.Errorf("field name contains a NUL byte")}
		}
		if err := validateValue(path, elem.Value); err != nil {
			return err
		}
	}
	return nil
}

// validateValue accepts only the types the driver yields when it decodes into
// bson.D. Native Go values such as time.Time, int, float32, bson.M or []byte
// would come back as a different type, or lose precision, so they are refused.
func validateValue(path string, value interface{}) error {
	switch v := value.(type) {
	case nil, bool, string, int32, int64, float64,
		primitive.Binary, primitive.DateTime, primitive.Timestamp, primitive.ObjectID,
		primitive.Decimal128, primitive.Regex, primitive.MinKey, primitive.MaxKey,
		primitive.Undefined, primitive.JavaScript, primitive.Symbol, primitive.DBPointer,
		primitive.CodeWithScope:
		return nil
	case bson.D:
		return validateDocument(path, v)
	case bson.A:
		return validateArray(path, v)
	}
	return &SerializationError{Path: path, Err: fmt.Errorf("unsupported value type %T", value)}
}

func validateArray(path string, values []interface{}) error {
	for i, nested := range values {
		if err := validateValue(joinPath(path, strconv.Itoa(i)), nested); err != nil {
			return err
		}
	}
	return nil
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
