package cloudsync

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/survey-engine/pkg/database"
)

func TestDocumentPath(t *testing.T) {
	path, err := DocumentPath("user-1", CollectionSurveys, "abc")
	require.NoError(t, err)
	assert.Equal(t, "users/user-1/surveys/abc", path)

	_, err = DocumentPath("", CollectionSurveys, "abc")
	assert.ErrorIs(t, err, database.ErrMissingUserID)

	_, err = DocumentPath("user-1", "a/b", "abc")
	assert.Error(t, err)

	_, err = DocumentPath("user-1", CollectionSurveys, "")
	assert.Error(t, err)
}

func TestRowDocumentID(t *testing.T) {
	id := uuid.MustParse("7d444840-9dc0-11d1-b245-5ffdce74fad2")
	assert.Equal(t, "7d444840-9dc0-11d1-b245-5ffdce74fad2_0", RowDocumentID(id, 0))
	assert.Equal(t, "7d444840-9dc0-11d1-b245-5ffdce74fad2_42", RowDocumentID(id, 42))
	assert.Equal(t, RowDocumentID(id, 7), RowDocumentID(id, 7))
	assert.Equal(t, "7d444840-9dc0-11d1-b245-5ffdce74fad2_", RowDocumentPrefix(id))
}

func TestStripNil(t *testing.T) {
	in := map[string]any{
		"keep":  "value",
		"drop":  nil,
		"list":  []any{1.0, nil, map[string]any{"inner": nil, "x": 2.0}},
		"child": map[string]any{"gone": nil, "kept": false},
	}

	out := stripNil(in).(map[string]any)

	assert.Equal(t, map[string]any{
		"keep":  "value",
		"list":  []any{1.0, map[string]any{"x": 2.0}},
		"child": map[string]any{"kept": false},
	}, out)
}

func TestToDocumentData(t *testing.T) {
	type sample struct {
		Name  string   `json:"name"`
		Value *float64 `json:"value"`
		Count int      `json:"count"`
	}

	data, err := toDocumentData(sample{Name: "Cardiology"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Cardiology", "count": 0.0}, data)
}
