package cloudsync

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ekaya-inc/survey-engine/pkg/database"
)

// Collection names used under each user.
const (
	CollectionSurveys    = "surveys"
	CollectionSurveyRows = "survey_rows"
)

// DocumentPath renders the remote path of a document.
func DocumentPath(userID, collection, docID string) (string, error) {
	if userID == "" {
		return "", database.ErrMissingUserID
	}
	for _, part := range []string{userID, collection, docID} {
		if part == "" || strings.Contains(part, "/") {
			return "", fmt.Errorf("invalid document path segment %q", part)
		}
	}
	return "users/" + userID + "/" + collection + "/" + docID, nil
}

// RowDocumentID is the deterministic id of the row at index in a survey,
// so re-uploading a survey overwrites instead of duplicating.
func RowDocumentID(surveyID uuid.UUID, index int) string {
	return surveyID.String() + "_" + strconv.Itoa(index)
}

// RowDocumentPrefix matches every row document of a survey.
func RowDocumentPrefix(surveyID uuid.UUID) string {
	return surveyID.String() + "_"
}

// toDocumentData converts v to a JSON object with nil values removed at every depth.
func toDocumentData(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return stripNil(data).(map[string]any), nil
}

// stripNil removes nil map values and nil slice elements recursively.
func stripNil(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if val == nil {
				delete(t, k)
				continue
			}
			t[k] = stripNil(val)
		}
		return t
	case []any:
		out := t[:0]
		for _, val := range t {
			if val == nil {
				continue
			}
			out = append(out, stripNil(val))
		}
		return out
	default:
		return v
	}
}
