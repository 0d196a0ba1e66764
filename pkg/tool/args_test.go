// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraymcp/core/pkg/errdefs"
)

func mustArgs(t *testing.T, raw string) Args {
	t.Helper()
	args, err := decodeArgs(json.RawMessage(raw))
	require.NoError(t, err)
	return args
}

func TestDecodeArgs(t *testing.T) {
	args, err := decodeArgs(nil)
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = decodeArgs(json.RawMessage(`null`))
	require.NoError(t, err)
	assert.NotNil(t, args)
	assert.Empty(t, args)

	_, err = decodeArgs(json.RawMessage(`[1]`))
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))
}

func TestArgs_String(t *testing.T) {
	args := mustArgs(t, `{"key":"PROJ-1","num":7,"gone":null}`)

	s, err := args.String("key")
	require.NoError(t, err)
	assert.Equal(t, "PROJ-1", s)

	_, err = args.String("missing")
	require.Error(t, err)
	assert.Equal(t, "Missing required argument: missing", err.Error())

	_, err = args.String("gone")
	require.Error(t, err, "an explicit null counts as missing")

	_, err = args.String("num")
	require.Error(t, err)
	assert.Equal(t, "Argument num must be a string", err.Error())

	s, err = args.OptionalString("missing")
	require.NoError(t, err)
	assert.Empty(t, s)
}

func TestArgs_Int(t *testing.T) {
	args := mustArgs(t, `{"whole":42,"alsoWhole":3.0,"frac":3.5,"text":"9"}`)

	n, err := args.Int("whole", 1)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	n, err = args.Int("alsoWhole", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "integral floats are integers on the wire")

	n, err = args.Int("missing", 17)
	require.NoError(t, err)
	assert.Equal(t, 17, n)

	_, err = args.Int("frac", 1)
	require.Error(t, err)
	assert.Equal(t, "Argument frac must be an integer", err.Error())

	_, err = args.Int("text", 1)
	require.Error(t, err)

	_, present, err := args.OptionalInt("missing")
	require.NoError(t, err)
	assert.False(t, present)

	n, present, err = args.OptionalInt("whole")
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, 42, n)
}

func TestArgs_LimitClampsInsteadOfRejecting(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{`{}`, 100},
		{`{"limit":17}`, 17},
		{`{"limit":1}`, 1},
		{`{"limit":100}`, 100},
		{`{"limit":101}`, 100},
		{`{"limit":10000}`, 100},
		{`{"limit":0}`, 1},
		{`{"limit":-5}`, 1},
	}
	for _, tc := range cases {
		n, err := mustArgs(t, tc.raw).Limit()
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, n, tc.raw)
	}

	_, err := mustArgs(t, `{"limit":"many"}`).Limit()
	require.Error(t, err, "a non-integer limit is still a type error")
}

func TestArgs_StringSlice(t *testing.T) {
	args := mustArgs(t, `{"ids":["A-1","A-2"],"mixed":["A-1",2],"scalar":"A-1"}`)

	ids, err := args.StringSlice("ids")
	require.NoError(t, err)
	assert.Equal(t, []string{"A-1", "A-2"}, ids)

	ids, err = args.StringSlice("missing")
	require.NoError(t, err)
	assert.Nil(t, ids)

	_, err = args.StringSlice("mixed")
	require.Error(t, err)
	assert.Equal(t, "Argument mixed must be a list of strings", err.Error())

	_, err = args.StringSlice("scalar")
	require.Error(t, err)
}

func TestArgs_StructuredMapAcceptsObjectAndString(t *testing.T) {
	want := map[string]any{"summary": "New name", "labels": []any{"smoke"}}

	obj := mustArgs(t, `{"fields":{"summary":"New name","labels":["smoke"]}}`)
	got, err := obj.StructuredMap("fields")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// The same document arriving as a JSON-encoded string decodes to the
	// identical value.
	str := mustArgs(t, `{"fields":"{\"summary\":\"New name\",\"labels\":[\"smoke\"]}"}`)
	got, err = str.StructuredMap("fields")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = mustArgs(t, `{}`).StructuredMap("fields")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestArgs_StructuredMapRejectsGarbage(t *testing.T) {
	_, err := mustArgs(t, `{"fields":"{not json"}`).StructuredMap("fields")
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))
	assert.Contains(t, err.Error(), "Invalid JSON in fields")

	_, err = mustArgs(t, `{"fields":"[1,2]"}`).StructuredMap("fields")
	require.Error(t, err)
	assert.Equal(t, "Argument fields must be a JSON object", err.Error())

	_, err = mustArgs(t, `{"fields":7}`).StructuredMap("fields")
	require.Error(t, err)
}

func TestArgs_StructuredObjects(t *testing.T) {
	want := []map[string]any{
		{"action": "Open the app", "result": "App opens"},
		{"action": "Log in", "result": "Dashboard shows"},
	}

	obj := mustArgs(t, `{"steps":[{"action":"Open the app","result":"App opens"},{"action":"Log in","result":"Dashboard shows"}]}`)
	got, err := obj.StructuredObjects("steps")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	str := mustArgs(t, `{"steps":"[{\"action\":\"Open the app\",\"result\":\"App opens\"},{\"action\":\"Log in\",\"result\":\"Dashboard shows\"}]"}`)
	got, err = str.StructuredObjects("steps")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = mustArgs(t, `{}`).StructuredObjects("steps")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = mustArgs(t, `{"steps":[{"action":"ok"},"loose"]}`).StructuredObjects("steps")
	require.Error(t, err)
	assert.Equal(t, "Each element of steps must be a JSON object", err.Error())

	_, err = mustArgs(t, `{"steps":{"action":"ok"}}`).StructuredObjects("steps")
	require.Error(t, err)
	assert.Equal(t, "Argument steps must be a list of JSON objects", err.Error())
}
