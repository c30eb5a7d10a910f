package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// VideoRecord is a single entry in a country's catalog.
// Payload is opaque to the service and passed through verbatim.
type VideoRecord struct {
	ID      string
	Payload json.RawMessage
}

// Country holds the descriptive metadata of a supported country.
type Country struct {
	Code         string `json:"-"`
	Name         string `json:"name"`
	OfficialName string `json:"officialName,omitempty"`
	Description  string `json:"description,omitempty"`
}

// CountryCatalog is the ordered, duplicate-free list of videos of one country.
// A catalog is immutable once built; Version identifies its content.
type CountryCatalog struct {
	Country Country
	Videos  []VideoRecord
	Version uint64
}

var (
	ErrEmptyCountryCode   = errors.New("country code cannot be empty")
	ErrInvalidCountryCode = errors.New("country code must be alphanumeric")
	ErrEmptyVideoID       = errors.New("video ID cannot be empty")
)

const maxCountryCodeLength = 8

// NormalizeCountryCode upper-cases and trims a country code.
func NormalizeCountryCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NewCountryCatalog validates the country and builds a catalog from videos.
// Videos whose ID was already seen earlier in the list are dropped; their IDs
// are returned so callers can report them.
func NewCountryCatalog(country Country, videos []VideoRecord) (*CountryCatalog, []string, error) {
	country.Code = NormalizeCountryCode(country.Code)
	if err := validateCountryCode(country.Code); err != nil {
		return nil, nil, err
	}

	seen := make(map[string]struct{}, len(videos))
	kept := make([]VideoRecord, 0, len(videos))
	var dropped []string
	for _, v := range videos {
		if v.ID == "" {
			return nil, nil, fmt.Errorf("%w: country %s", ErrEmptyVideoID, country.Code)
		}
		if _, dup := seen[v.ID]; dup {
			dropped = append(dropped, v.ID)
			continue
		}
		seen[v.ID] = struct{}{}
		if len(v.Payload) == 0 {
			v.Payload = json.RawMessage("null")
		}
		kept = append(kept, v)
	}

	return &CountryCatalog{
		Country: country,
		Videos:  kept,
		Version: catalogVersion(country.Code, kept),
	}, dropped, nil
}

// Total returns the number of videos in the catalog.
func (c *CountryCatalog) Total() int {
	if c == nil {
		return 0
	}
	return len(c.Videos)
}

func validateCountryCode(code string) error {
	if code == "" {
		return ErrEmptyCountryCode
	}
	if len(code) > maxCountryCodeLength {
		return fmt.Errorf("%w: %q", ErrInvalidCountryCode, code)
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return fmt.Errorf("%w: %q", ErrInvalidCountryCode, code)
		}
	}
	return nil
}

// catalogVersion hashes the code and the ordered ids and payloads.
// Identical seeds produce identical versions in every process.
func catalogVersion(code string, videos []VideoRecord) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(code)
	for _, v := range videos {
		_, _ = d.Write([]byte{0})
		_, _ = d.WriteString(v.ID)
		_, _ = d.Write([]byte{0})
		_, _ = d.Write(v.Payload)
	}
	return d.Sum64()
}

// VideoList is an ordered list of videos that encodes as a JSON object
// mapping video ID to payload, preserving order.
type VideoList []VideoRecord

// MarshalJSON implements json.Marshaler.
func (l VideoList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, v := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(v.ID)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if len(v.Payload) == 0 {
			buf.WriteString("null")
			continue
		}
		if err := json.Compact(&buf, v.Payload); err != nil {
			return nil, fmt.Errorf("video %s: invalid payload: %w", v.ID, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler. Object order is preserved.
func (l *VideoList) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*l = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("video list: expected object, got %v", tok)
	}

	out := VideoList{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id, ok := tok.(string)
		if !ok {
			return fmt.Errorf("video list: expected string key, got %v", tok)
		}
		var payload json.RawMessage
		if err := dec.Decode(&payload); err != nil {
			return fmt.Errorf("video list: decode %s: %w", id, err)
		}
		out = append(out, VideoRecord{ID: id, Payload: payload})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*l = out
	return nil
}

// IDs returns the video IDs in order.
func (l VideoList) IDs() []string {
	ids := make([]string, len(l))
	for i, v := range l {
		ids[i] = v.ID
	}
	return ids
}
