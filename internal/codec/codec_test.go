package codec_test

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kadirbelkuyu/docsnap/internal/codec"
	"github.com/kadirbelkuyu/docsnap/internal/docstore"
)

func richDocument() docstore.Document {
	id, _ := primitive.ObjectIDFromHex("64b7f0c2a1b2c3d4e5f60718")
	price, _ := primitive.ParseDecimal128("19.99")

	return bson.D{
		{Key: "_id", Value: id},
		{Key: "name", Value: "Widget"},
		{Key: "active", Value: true},
		{Key: "missing", Value: nil},
		{Key: "qty", Value: int32(7)},
		{Key: "views", Value: int64(1 << 40)},
		{Key: "ratio", Value: 0.25},
		{Key: "price", Value: price},
		{Key: "blob", Value: primitive.Binary{Subtype: 0x00, Data: []byte{0x00, 0xff, 0x10}}},
		{Key: "uuid", Value: primitive.Binary{Subtype: 0x04, Data: bytes.Repeat([]byte{0xab}, 16)}},
		{Key: "createdAt", Value: primitive.NewDateTimeFromTime(time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC))},
		{Key: "ts", Value: primitive.Timestamp{T: 1700000000, I: 3}},
		{Key: "address", Value: bson.D{
			{Key: "city", Value: "Izmir"},
			{Key: "geo", Value: bson.A{38.42, 27.14}},
		}},
		{Key: "tags", Value: bson.A{"a", int32(2), bson.D{{Key: "nested", Value: bson.A{}}}}},
		{Key: "empty", Value: bson.D{}},
		{Key: "emptyList", Value: bson.A{}},
	}
}

func TestRoundTripPreservesEveryKind(t *testing.T) {
	doc := richDocument()

	data, err := codec.Marshal(doc)
	require.NoError(t, err)
	require.NotContains(t, string(data), "\n")
	require.Contains(t, string(data), `"$binary"`)
	require.Contains(t, string(data), `"$timestamp"`)

	decoded, err := codec.Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, doc, decoded)
}

func TestMarshalIsDeterministic(t *testing.T) {
	first, err := codec.Marshal(richDocument())
	require.NoError(t, err)
	second, err := codec.Marshal(richDocument())
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestValidateReportsFieldPath(t *testing.T) {
	doc := bson.D{
		{Key: "items", Value: bson.A{
			bson.D{{Key: "price", Value: int32(1)}},
			bson.D{{Key: "price", Value: complex(1, 2)}},
		}},
	}

	_, err := codec.Marshal(doc)

	var serErr *codec.SerializationError
	require.ErrorAs(t, err, &serErr)
	require.Equal(t, "items.1.price", serErr.Path)
}

func TestValidateRejectsChannels(t *testing.T) {
	err := codec.Validate(bson.D{{Key: "meta", Value: bson.D{{Key: "events", Value: make(chan int)}}}})

	var serErr *codec.SerializationError
	require.ErrorAs(t, err, &serErr)
	require.Equal(t, "meta.events", serErr.Path)
}

func TestRoundTripRefusesLossyKinds(t *testing.T) {
	cases := map[string]interface{}{
		"time.Time":      time.Date(2024, 1, 1, 0, 0, 0, 123456789, time.UTC),
		"int":            5,
		"float32":        float32(1.5),
		"bson.M":         bson.M{"a": int32(1)},
		"[]byte":         []byte{0x01},
		"[]interface{}":  []interface{}{int32(1)},
		"primitive.Null": primitive.Null{},
	}

	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			doc := bson.D{{Key: "outer", Value: bson.D{{Key: "v", Value: value}}}}

			data, err := codec.Marshal(doc)
			require.Nil(t, data)

			var serErr *codec.SerializationError
			require.ErrorAs(t, err, &serErr)
			require.Equal(t, "outer.v", serErr.Path)
		})
	}
}

func TestRoundTripOfDriverEquivalents(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 123000000, time.UTC)
	doc := bson.D{
		{Key: "at", Value: primitive.NewDateTimeFromTime(at)},
		{Key: "n", Value: int32(5)},
		{Key: "f", Value: float64(1.5)},
		{Key: "m", Value: bson.D{{Key: "a", Value: int32(1)}}},
		{Key: "b", Value: primitive.Binary{Data: []byte{0x01}}},
		{Key: "l", Value: bson.A{int32(1)}},
		{Key: "null", Value: nil},
	}

	data, err := codec.Marshal(doc)
	require.NoError(t, err)

	decoded, err := codec.Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, doc, decoded)
	require.True(t, at.Equal(decoded[0].Value.(primitive.DateTime).Time()))
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	_, err := codec.Unmarshal([]byte(`{"broken":`))

	var serErr *codec.SerializationError
	require.True(t, errors.As(err, &serErr))
}

func TestWriterReaderStreamsRecordsInOrder(t *testing.T) {
	var buf bytes.Buffer
	w := codec.NewWriter(&buf)

	for i := 0; i < 3; i++ {
		require.NoError(t, w.Write(bson.D{{Key: "_id", Value: int32(i)}, {Key: "doc", Value: richDocument()}}))
	}
	require.NoError(t, w.Flush())
	require.Equal(t, int64(3), w.Count())
	require.Equal(t, 3, bytes.Count(buf.Bytes(), []byte("\n")))

	r := codec.NewReader(&buf)
	for i := 0; i < 3; i++ {
		doc, err := r.Next()
		require.NoError(t, err)
		require.Equal(t, int32(i), doc[0].Value)
		require.Equal(t, richDocument(), doc[1].Value)
	}

	_, err := r.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestReaderHandlesMissingTrailingNewline(t *testing.T) {
	r := codec.NewReader(bytes.NewBufferString(`{"a":{"$numberInt":"1"}}` + "\n\n" + `{"a":{"$numberInt":"2"}}`))

	first, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, int32(1), first[0].Value)

	second, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, int32(2), second[0].Value)

	_, err = r.Next()
	require.ErrorIs(t, err, io.EOF)
}
