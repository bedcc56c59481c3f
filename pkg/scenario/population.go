package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ReadPersons decodes one PersonDoc per JSON value from r.
func ReadPersons(r io.Reader) ([]PersonDoc, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var out []PersonDoc
	for dec.More() {
		var p PersonDoc
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode person %d: %w", len(out), err)
		}
		if p.ID == "" {
			return nil, fmt.Errorf("person %d: id is required", len(out))
		}
		if p.Age < 0 || p.Susceptibility < 0 || p.Infectivity < 0 {
			return nil, fmt.Errorf("person %s: negative attribute", p.ID)
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, errors.New("population file is empty")
	}
	return out, nil
}
