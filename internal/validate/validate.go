package validate

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Skotchmaster/storefront/internal/apperr"
)

const baseURL = "https://storefront.local/schemas/"

const (
	CartAdd         = "cart_add"
	CartUpdate      = "cart_update"
	CartPlaceOrder  = "cart_placeorder"
	OrderPlace      = "order_place"
	IntentCreate    = "intent_create"
	IntentConfirm   = "intent_confirm"
	ChangeStatus    = "change_status"
	maxMessageDepth = 16
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Validator checks request bodies against the embedded JSON Schemas before
// they are decoded into DTOs.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

func New() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true

	entries, err := fs.ReadDir(schemaFS, "schemas")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		raw, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(baseURL+e.Name(), bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("schema load %s: %w", e.Name(), err)
		}
		if name := strings.TrimSuffix(e.Name(), ".json"); name != "defs" {
			names = append(names, name)
		}
	}

	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(names))}
	for _, name := range names {
		s, err := c.Compile(baseURL + name + ".json")
		if err != nil {
			return nil, fmt.Errorf("schema compile %s: %w", name, err)
		}
		v.schemas[name] = s
	}
	return v, nil
}

func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// Decode validates body against the named schema, then unmarshals it into out.
func (v *Validator) Decode(schema string, body []byte, out any) error {
	s, ok := v.schemas[schema]
	if !ok {
		return fmt.Errorf("unknown schema %q", schema)
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: malformed JSON body", apperr.ErrValidation)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON body", apperr.ErrValidation)
	}
	if err := s.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return fmt.Errorf("%w: %s", apperr.ErrValidation, describe(ve))
		}
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return nil
}

// describe reports the deepest cause, which names the offending field.
func describe(ve *jsonschema.ValidationError) string {
	leaf := ve
	for i := 0; i < maxMessageDepth && len(leaf.Causes) > 0; i++ {
		leaf = leaf.Causes[0]
	}
	loc := leaf.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return loc + ": " + leaf.Message
}
