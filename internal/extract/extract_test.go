package extract

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UncleMcDonald/SmartScrape/internal/model"
)

type fakeLLM struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeLLM) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func TestFirstArray(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		want  string
		ok    bool
	}{
		{"bare", `[{"a":1}]`, `[{"a":1}]`, true},
		{"prose around", "Sure! Here is the data:\n[{\"name\":\"Kettle\"}]\nLet me know.", `[{"name":"Kettle"}]`, true},
		{"code fence", "```json\n[1, 2]\n```", `[1, 2]`, true},
		{"bracket inside string", `Result: [{"note":"size [L]"}] done`, `[{"note":"size [L]"}]`, true},
		{"skips malformed first", `[see below] then [{"x":true}]`, `[{"x":true}]`, true},
		{"nested", `x [[1],[2]] y`, `[[1],[2]]`, true},
		{"first of two", `[1] and [2]`, `[1]`, true},
		{"none", `I could not find anything.`, ``, false},
		{"unbalanced", `[{"a":1}`, ``, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FirstArray(tc.reply)
			if !tc.ok {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}
}

func TestParseRecords(t *testing.T) {
	recs := ParseRecords("Here you go: [{\"Title\":\"Kettle\",\"price\":\"$20\"}, {\"Title\":\"Pot\"}] hope it helps")
	require.Len(t, recs, 2)
	assert.Equal(t, "Kettle", recs[0]["Title"])
	assert.Equal(t, "Pot", recs[1]["Title"])

	recs = ParseRecords("no json here")
	require.Len(t, recs, 1)
	assert.Equal(t, ParseErrorMessage, recs[0]["error"])
	assert.Equal(t, "Invalid format from LLM", recs[0]["reason"])

	recs = ParseRecords(`["a","b"]`)
	require.Len(t, recs, 1)
	assert.Equal(t, ParseErrorMessage, recs[0]["error"])

	assert.Empty(t, ParseRecords(`[]`))

	recs = ParseRecords(`[{"error":"Unable to extract data","reason":"not a product page"}]`)
	msg, reason, ok := model.ErrorOnly(recs)
	require.True(t, ok)
	assert.Equal(t, "Unable to extract data", msg)
	assert.Equal(t, "not a product page", reason)
}

func TestParseStrings(t *testing.T) {
	got, err := ParseStrings("Fields: [\"name\", \" price \", 3, \"\", \"delivery\"]")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "price", "delivery"}, got)

	_, err = ParseStrings("name, price")
	require.Error(t, err)
}

func TestDataPrompt(t *testing.T) {
	content := strings.Repeat("é", 3100)
	p := DataPrompt(Request{
		Content:         content,
		Instruction:     "Extract name and image url",
		RequiredFields:  []string{"name", "price"},
		ImageCandidates: []string{"https://cdn.example/a.jpg"},
	}, 0)

	assert.Contains(t, p, `"Extract name and image url"`)
	assert.Contains(t, p, `Every object MUST include these fields: "name", "price"`)
	assert.Contains(t, p, "- https://cdn.example/a.jpg")
	assert.Contains(t, p, "Main Image URL")
	assert.Contains(t, p, "JSON array")

	body := p[strings.Index(p, "CONTENT:\n")+len("CONTENT:\n"):]
	assert.Equal(t, DefaultContentLimit, utf8.RuneCountInString(body))
	assert.True(t, utf8.ValidString(body))
}

func TestFieldPromptHasNoContent(t *testing.T) {
	p := FieldPrompt("get the price and shipping time")
	assert.Contains(t, p, `"get the price and shipping time"`)
	assert.Contains(t, p, "JSON array of strings")
	assert.NotContains(t, p, "CONTENT:")
}

func TestAdapterExtract(t *testing.T) {
	fake := &fakeLLM{reply: "```json\n[{\"name\":\"Kettle\"}]\n```"}
	a := NewAdapter(fake, 10, nil)

	recs, err := a.Extract(context.Background(), Request{Content: "0123456789ABCDEF", Instruction: "name"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Kettle", recs[0]["name"])

	require.Len(t, fake.prompts, 1)
	assert.True(t, strings.HasSuffix(fake.prompts[0], "CONTENT:\n0123456789"))
}

func TestAdapterCallFailure(t *testing.T) {
	a := NewAdapter(&fakeLLM{err: errors.New("connection reset")}, 0, nil)
	_, err := a.Extract(context.Background(), Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	var none *Adapter
	assert.False(t, none.Configured())

	_, err = NewAdapter(nil, 0, nil).AnalyzeFields(context.Background(), "x")
	require.ErrorIs(t, err, ErrNoClient)
}

func FuzzParseRecords(f *testing.F) {
	seeds := []string{
		`[{"a":1}]`,
		"Sure:\n[{\"a\":\"]\"}]\nbye",
		`[[[[`,
		`]]]][`,
		`["\"]"]`,
		`[{"a":"é"}] [1]`,
		"",
		`{"not":"array"}`,
	}
	for _, s := range seeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, reply string) {
		recs := ParseRecords(reply)
		if raw, err := FirstArray(reply); err == nil {
			if !json.Valid(raw) {
				t.Fatalf("FirstArray returned invalid JSON %q", raw)
			}
			if !strings.Contains(reply, string(raw)) {
				t.Fatalf("FirstArray returned text not in reply")
			}
			return
		}
		if len(recs) != 1 || recs[0]["error"] != ParseErrorMessage {
			t.Fatalf("expected parse-error record, got %v", recs)
		}
	})
}
