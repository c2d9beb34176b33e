package fetcher

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// envelopeKeys are the wrapper fields an API may nest its rows under.
var envelopeKeys = []string{"results", "data", "items"}

// DecodeRows decodes either a bare JSON array of objects or an object
// envelope such as {"results": [...]}. An empty body yields no rows.
func DecodeRows(r io.Reader) ([]Row, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "json: read body")
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	switch data[0] {
	case '[':
		var rows []Row
		if err := dec.Decode(&rows); err != nil {
			return nil, eris.Wrap(err, "json: decode array")
		}
		return rows, nil
	case '{':
		var env map[string]json.RawMessage
		if err := dec.Decode(&env); err != nil {
			return nil, eris.Wrap(err, "json: decode envelope")
		}
		for _, k := range envelopeKeys {
			raw, ok := env[k]
			if !ok {
				continue
			}
			inner := json.NewDecoder(bytes.NewReader(raw))
			inner.UseNumber()
			var rows []Row
			if err := inner.Decode(&rows); err != nil {
				return nil, eris.Wrapf(err, "json: decode %q", k)
			}
			return rows, nil
		}
		return nil, eris.New("json: object has no results array")
	default:
		return nil, eris.Errorf("json: expected array or object, got %q", data[0])
	}
}
