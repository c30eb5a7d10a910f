package origin

import (
	"errors"
	"strings"
	"testing"
)

func TestParseDocument(t *testing.T) {
	doc := `
countries:
  - code: us
    name: United States
    officialName: United States of America
    videos:
      - id: "v1"
        payload:
          title: First
          views: 10
          tags: [a, b]
          live: false
      - id: "v2"
      - id: "v3"
        payload: "plain string"
  - code: GB
    name: United Kingdom
`
	seeds, err := ParseDocument(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseDocument() unexpected error = %v", err)
	}

	if len(seeds) != 2 {
		t.Fatalf("len(seeds) = %d, want 2", len(seeds))
	}

	us := seeds[0]
	if us.Country.Code != "us" || us.Country.OfficialName != "United States of America" {
		t.Errorf("country = %+v", us.Country)
	}
	if len(us.Videos) != 3 {
		t.Fatalf("len(videos) = %d, want 3", len(us.Videos))
	}

	tests := []struct {
		id   string
		want string
	}{
		{"v1", `{"title":"First","views":10,"tags":["a","b"],"live":false}`},
		{"v2", `null`},
		{"v3", `"plain string"`},
	}
	for i, tt := range tests {
		if us.Videos[i].ID != tt.id {
			t.Errorf("video %d ID = %q, want %q", i, us.Videos[i].ID, tt.id)
		}
		if got := string(us.Videos[i].Payload); got != tt.want {
			t.Errorf("video %s payload = %s, want %s", tt.id, got, tt.want)
		}
	}

	if len(seeds[1].Videos) != 0 {
		t.Errorf("GB videos = %d, want 0", len(seeds[1].Videos))
	}
}

func TestParseDocument_JSON(t *testing.T) {
	doc := `{"countries":[{"code":"NL","name":"Netherlands","videos":[{"id":"n1","payload":{"z":1,"a":{"b":null}}}]}]}`

	seeds, err := ParseDocument(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseDocument() unexpected error = %v", err)
	}
	if got, want := string(seeds[0].Videos[0].Payload), `{"z":1,"a":{"b":null}}`; got != want {
		t.Errorf("payload = %s, want %s", got, want)
	}
}

func TestParseDocument_ScalarsKeepTheirText(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{name: "timestamp", value: "2024-01-02", want: `"2024-01-02"`},
		{name: "timestamp with time", value: "2024-01-02T15:04:05Z", want: `"2024-01-02T15:04:05Z"`},
		{name: "hex int", value: "0x1F", want: `"0x1F"`},
		{name: "octal int", value: "0o17", want: `"0o17"`},
		{name: "infinity", value: ".inf", want: `".inf"`},
		{name: "negative infinity", value: "-.inf", want: `"-.inf"`},
		{name: "not a number", value: ".nan", want: `".nan"`},
		{name: "decimal int", value: "42", want: `42`},
		{name: "negative float", value: "-1.5", want: `-1.5`},
		{name: "exponent", value: "1e3", want: `1e3`},
		{name: "bool", value: "true", want: `true`},
		{name: "null", value: "~", want: `null`},
		{name: "quoted number", value: `"10"`, want: `"10"`},
		{name: "plain string", value: "yes", want: `"yes"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := "countries:\n  - code: US\n    videos:\n      - id: v1\n        payload:\n          v: " + tt.value + "\n"

			seeds, err := ParseDocument(strings.NewReader(doc))
			if err != nil {
				t.Fatalf("ParseDocument() unexpected error = %v", err)
			}
			if got, want := string(seeds[0].Videos[0].Payload), `{"v":`+tt.want+`}`; got != want {
				t.Errorf("payload = %s, want %s", got, want)
			}
		})
	}
}

func TestParseDocument_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{name: "empty input", doc: "", wantErr: ErrEmptyDocument},
		{name: "no countries", doc: "countries: []\n", wantErr: ErrEmptyDocument},
		{name: "malformed", doc: "countries: [\n"},
		{name: "wrong shape", doc: "countries: 5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDocument(strings.NewReader(tt.doc))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMetadata(t *testing.T) {
	seeds, err := DefaultCountries()
	if err != nil {
		t.Fatalf("DefaultCountries() unexpected error = %v", err)
	}

	meta := Metadata(seeds)
	if got := meta["GR"].OfficialName; got != "Hellenic Republic" {
		t.Errorf("GR official name = %q, want Hellenic Republic", got)
	}
}
