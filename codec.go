package txstore

import (
	"bytes"
	stdjson "encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/vmihailenco/msgpack/v4"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// encodeKey renders a key as a canonical JSON array. Equal keys always
// encode to the same text, which makes it usable as a storage column.
func encodeKey(k Key) (s string, err error) {
	p, err := json.Marshal([]interface{}(k))
	if err != nil {
		err = fmt.Errorf("txstore key encode failed, %v", err)
		return
	}
	s = string(p)
	return
}

func decodeKey(s string) (k Key, err error) {
	var parts []interface{}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err = dec.Decode(&parts); err != nil {
		err = fmt.Errorf("txstore key decode failed, %v", err)
		return
	}
	raw := make([]interface{}, len(parts))
	for i, p := range parts {
		switch v := p.(type) {
		case stdjson.Number:
			if raw[i], err = decodeNumber(string(v)); err != nil {
				return
			}
		case jsoniter.Number:
			if raw[i], err = decodeNumber(string(v)); err != nil {
				return
			}
		default:
			raw[i] = v
		}
	}
	return NewKey(raw...)
}

func decodeNumber(s string) (v interface{}, err error) {
	if i, perr := strconv.ParseInt(s, 10, 64); perr == nil {
		v = i
		return
	}
	if u, perr := strconv.ParseUint(s, 10, 64); perr == nil {
		v = u
		return
	}
	f, perr := strconv.ParseFloat(s, 64)
	if perr != nil {
		err = fmt.Errorf("txstore key decode failed, bad number %q", s)
		return
	}
	v = f
	return
}

// encodeVersion produces the canonical msgpack form of a record version.
// Map keys are sorted so structurally equal values encode identically.
func encodeVersion(v interface{}) (p []byte, err error) {
	if v == nil {
		err = errors.New("txstore version encode failed, value is nil")
		return
	}
	buf := new(bytes.Buffer)
	enc := msgpack.NewEncoder(buf).SortMapKeys(true)
	if err = enc.Encode(v); err != nil {
		err = fmt.Errorf("txstore version encode failed, %w", err)
		return
	}
	p = buf.Bytes()
	return
}

func decodeVersion(p []byte, v interface{}) (err error) {
	if err = msgpack.Unmarshal(p, v); err != nil {
		err = fmt.Errorf("txstore version decode failed, %w", err)
	}
	return
}
