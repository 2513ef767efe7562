package response

import (
	"testing"

	errx "bookgpt/backend/internal/core/error"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	Title  *string `json:"title"`
	Author *string `json:"author"`
}

type payload struct {
	Items []item
}

func (p *payload) UnmarshalJSON(data []byte) error {
	items, err := UnmarshalList(data, []string{"books", "items", "results"}, func(i item) bool {
		return i.Title != nil && i.Author != nil
	})
	if err != nil {
		return err
	}
	p.Items = items
	return nil
}

func titles(p payload) []string {
	out := make([]string, 0, len(p.Items))
	for _, i := range p.Items {
		out = append(out, *i.Title)
	}
	return out
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"surrounding prose", "Sure! Here you go: {\"a\":{\"b\":2}} Enjoy.", `{"a":{"b":2}}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced without closing line", "```json\n{\"a\":1}\nthanks", `{"a":1}`},
		{"array when no object", "list: [1,[2,3]] done", `[1,[2,3]]`},
		{"object wins over earlier array", `[1] then {"a":1}`, `{"a":1}`},
		{"unbalanced returns cleaned text", "```\n{\"a\":1\n```", `{"a":1`},
		{"nothing found", "  no json here  ", "no json here"},
		{"short fence kept", "```{\"a\":1}```", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.in))
		})
	}
}

func TestExtractJSONIgnoresStringContext(t *testing.T) {
	// A closing brace inside a string value ends the span early.
	in := `{"title":"odd }","author":"x"}`
	assert.Equal(t, `{"title":"odd }`, ExtractJSON(in))

	_, err := Decode[payload](in)
	assert.ErrorIs(t, err, errx.ErrDecode)
}

func TestDecodeEnvelopeShapes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"books key", `{"books":[{"title":"Emma","author":"Jane Austen"}]}`, []string{"Emma"}},
		{"items key", `{"items":[{"title":"Ulysses","author":"James Joyce"}]}`, []string{"Ulysses"}},
		{"results key", `{"results":[{"title":"Beloved","author":"Toni Morrison"}]}`, []string{"Beloved"}},
		{"books preferred over results", `{"results":[{"title":"B","author":"b"}],"books":[{"title":"A","author":"a"}]}`, []string{"A"}},
		{"invalid books falls through to items", `{"books":[{"title":"A"}],"items":[{"title":"I","author":"i"}]}`, []string{"I"}},
		{"unknown key is empty", `{"novels":[{"title":"A","author":"a"}]}`, []string{}},
		{"incomplete everywhere is empty", `{"books":[{"title":"A"}]}`, []string{}},
		{"prose and fence", "Here:\n```json\n{\"books\":[{\"title\":\"Dune\",\"author\":\"Frank Herbert\"}]}\n```", []string{"Dune"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode[payload](tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, titles(got))
		})
	}
}

func TestDecodeFailures(t *testing.T) {
	for _, in := range []string{
		`{"books":[{"title":"A","author":"a"}`,
		`[1, 2]`,
		`"just a string"`,
		`null`,
		`sorry, I cannot help with that`,
	} {
		_, err := Decode[payload](in)
		assert.ErrorIs(t, err, errx.ErrDecode, in)
	}
}

func TestDecodeArrayOfObjectsPrefersFirstObject(t *testing.T) {
	// Object extraction runs before array extraction, so the first element is
	// decoded on its own and matches no envelope key.
	got, err := Decode[payload](`[{"title":"Dune","author":"Frank Herbert"}]`)
	require.NoError(t, err)
	assert.Empty(t, got.Items)
}

func TestUnmarshalListBareArray(t *testing.T) {
	complete := func(i item) bool { return i.Title != nil && i.Author != nil }

	items, err := UnmarshalList([]byte(`[{"title":"Dune","author":"Frank Herbert"}]`), []string{"books"}, complete)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Frank Herbert", *items[0].Author)

	items, err = UnmarshalList([]byte(`[]`), []string{"books"}, complete)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)

	_, err = UnmarshalList([]byte(`[{"title":"Dune"}]`), []string{"books"}, complete)
	assert.ErrorIs(t, err, errx.ErrDecode)
}
