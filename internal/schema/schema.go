package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/gofiber/fiber/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/deepwater-mud/economy/internal/apperr"
)

// Request body schemas.
const (
	TradeOffer    = "trade_offer"
	AuctionCreate = "auction_create"
)

//go:embed schemas/*.schema.json
var files embed.FS

// Validator checks request bodies against the embedded JSON schemas.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// New compiles every embedded schema.
func New() (*Validator, error) {
	entries, err := files.ReadDir("schemas")
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		raw, err := files.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(e.Name(), bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("load schema %s: %w", e.Name(), err)
		}
		names = append(names, e.Name())
	}
	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(names))}
	for _, name := range names {
		s, err := c.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		v.schemas[name[:len(name)-len(".schema.json")]] = s
	}
	return v, nil
}

// Validate checks a raw JSON body against the named schema.
func (v *Validator) Validate(name string, body []byte) error {
	s, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return apperr.Validation("malformed body: %v", err)
	}
	if err := s.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return apperr.Validation("%s", describe(verr))
		}
		return apperr.Validation("%v", err)
	}
	return nil
}

// describe returns the most specific failure in the error tree.
func describe(e *jsonschema.ValidationError) string {
	for len(e.Causes) > 0 {
		e = e.Causes[0]
	}
	loc := e.InstanceLocation
	if loc == "" {
		loc = "body"
	}
	return loc + ": " + e.Message
}

// Middleware rejects requests whose body does not match the named schema.
func (v *Validator) Middleware(name string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := v.Validate(name, c.Body()); err != nil {
			return err
		}
		return c.Next()
	}
}
