package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"simple", "notes", false},
		{"dashes", "text-editor_2", false},
		{"empty", "", true},
		{"dot", "a.b", true},
		{"slash", "a/b", true},
		{"too long", strings.Repeat("a", MaxIDLength+1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.id, "id", true)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateCategoryAndTags(t *testing.T) {
	assert.NoError(t, ValidateCategory("", false))
	assert.NoError(t, ValidateCategory("productivity", true))
	assert.Error(t, ValidateCategory("Productivity", true))

	assert.NoError(t, ValidateTags([]string{"a", "b"}))
	assert.Error(t, ValidateTags([]string{""}))
	assert.Error(t, ValidateTags(make([]string, MaxTagCount+1)))
}

func TestValidateRoom(t *testing.T) {
	assert.NoError(t, ValidateRoom("app:chat.lobby"))
	assert.Error(t, ValidateRoom(""))
	assert.Error(t, ValidateRoom("has space"))
}

func TestJSONValidation(t *testing.T) {
	v := NewJSONSizeValidator(16)
	assert.NoError(t, v.ValidateJSON([]byte(`{"a":1}`)))
	assert.Error(t, v.ValidateJSON([]byte(`{"a":`)))
	assert.Error(t, v.ValidateJSON([]byte(`{"aaaaaaaaaaaaaaaa":1}`)))
}

func TestValidatePayloadDepth(t *testing.T) {
	shallow := map[string]interface{}{"a": []interface{}{1, 2}}
	assert.NoError(t, ValidatePayload(shallow, 4))

	deep := map[string]interface{}{"a": map[string]interface{}{"b": map[string]interface{}{"c": 1}}}
	assert.Error(t, ValidatePayload(deep, 2))
}
