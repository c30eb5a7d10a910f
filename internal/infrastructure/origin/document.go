// Package origin provides the sources a catalog can be seeded from.
package origin

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hszk-dev/countrytube/internal/domain/model"
	"github.com/hszk-dev/countrytube/internal/domain/repository"
)

// ErrEmptyDocument is returned when a catalog document has no countries.
var ErrEmptyDocument = errors.New("catalog document has no countries")

// document is the catalog file format shared by the static and snapshot
// origins. JSON documents parse as well, being valid YAML.
type document struct {
	Countries []documentCountry `yaml:"countries"`
}

type documentCountry struct {
	Code         string          `yaml:"code"`
	Name         string          `yaml:"name"`
	OfficialName string          `yaml:"officialName"`
	Description  string          `yaml:"description"`
	Videos       []documentVideo `yaml:"videos"`
}

type documentVideo struct {
	ID      string    `yaml:"id"`
	Payload yaml.Node `yaml:"payload"`
}

// ParseDocument reads a catalog document. Video payloads are converted to
// JSON with their mapping keys in document order.
func ParseDocument(r io.Reader) ([]repository.SeedCountry, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyDocument
		}
		return nil, fmt.Errorf("failed to decode catalog document: %w", err)
	}
	if len(doc.Countries) == 0 {
		return nil, ErrEmptyDocument
	}

	out := make([]repository.SeedCountry, 0, len(doc.Countries))
	for _, c := range doc.Countries {
		seed := repository.SeedCountry{
			Country: model.Country{
				Code:         c.Code,
				Name:         c.Name,
				OfficialName: c.OfficialName,
				Description:  c.Description,
			},
			Videos: make([]model.VideoRecord, 0, len(c.Videos)),
		}
		for _, v := range c.Videos {
			payload, err := nodeToJSON(&v.Payload)
			if err != nil {
				return nil, fmt.Errorf("country %s video %q: %w", c.Code, v.ID, err)
			}
			seed.Videos = append(seed.Videos, model.VideoRecord{ID: v.ID, Payload: payload})
		}
		out = append(out, seed)
	}
	return out, nil
}

// nodeToJSON renders a YAML node as compact JSON.
func nodeToJSON(n *yaml.Node) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := writeNode(&buf, n); err != nil {
		return nil, err
	}
	return json.RawMessage(buf.Bytes()), nil
}

func writeNode(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.Kind {
	case 0:
		buf.WriteString("null")
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return writeNode(buf, n.Content[0])
	case yaml.AliasNode:
		return writeNode(buf, n.Alias)
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(n.Content[i].Value)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeNode(buf, n.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, item := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeNode(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case yaml.ScalarNode:
		return writeScalar(buf, n)
	default:
		return fmt.Errorf("line %d: unsupported yaml node kind %d", n.Line, n.Kind)
	}
	return nil
}

// writeScalar emits the scalar text as written. Numbers and booleans pass
// through only when they are already JSON literals; anything else, such as
// timestamps, hex integers or .inf, is kept as a string.
func writeScalar(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.ShortTag() {
	case "!!null":
		buf.WriteString("null")
		return nil
	case "!!int", "!!float", "!!bool":
		if isJSONLiteral(n.Value) {
			buf.WriteString(n.Value)
			return nil
		}
	}
	b, err := json.Marshal(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	buf.Write(b)
	return nil
}

// isJSONLiteral reports whether s is a JSON number, true or false.
func isJSONLiteral(s string) bool {
	if s == "" || strings.TrimSpace(s) != s || s == "null" {
		return false
	}
	switch s[0] {
	case '"', '[', '{':
		return false
	}
	return json.Valid([]byte(s))
}

// Metadata indexes the country metadata of seeds by code.
func Metadata(seeds []repository.SeedCountry) map[string]model.Country {
	out := make(map[string]model.Country, len(seeds))
	for _, s := range seeds {
		out[model.NormalizeCountryCode(s.Country.Code)] = s.Country
	}
	return out
}
