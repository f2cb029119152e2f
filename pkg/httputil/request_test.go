package httputil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		expectError bool
	}{
		{
			name:        "valid JSON",
			body:        `{"name": "test"}`,
			expectError: false,
		},
		{
			name:        "invalid JSON",
			body:        `{invalid}`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/test", bytes.NewBufferString(tt.body))
			var dest map[string]string

			err := ParseJSON(req, &dest)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, "test", dest["name"])
			}
		})
	}
}

func TestParseJSONOrError(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		expectOK   bool
		expectCode int
	}{
		{
			name:     "valid JSON",
			body:     `{"name": "test"}`,
			expectOK: true,
		},
		{
			name:       "invalid JSON",
			body:       `{invalid}`,
			expectOK:   false,
			expectCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest("POST", "/test", bytes.NewBufferString(tt.body))
			var dest map[string]string

			ok := ParseJSONOrError(w, req, &dest)

			assert.Equal(t, tt.expectOK, ok)
			if !tt.expectOK {
				assert.Equal(t, tt.expectCode, w.Code)
			}
		})
	}
}

func TestParsePathInt(t *testing.T) {
	tests := []struct {
		name        string
		pathValue   string
		expectValue int
		expectError bool
	}{
		{
			name:        "valid integer",
			pathValue:   "123",
			expectValue: 123,
			expectError: false,
		},
		{
			name:        "invalid integer",
			pathValue:   "abc",
			expectError: true,
		},
		{
			name:        "empty value",
			pathValue:   "",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test/"+tt.pathValue, nil)
			req = mux.SetURLVars(req, map[string]string{"id": tt.pathValue})

			val, err := ParsePathInt(req, "id")

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expectValue, val)
			}
		})
	}
}

func TestParsePathInt64(t *testing.T) {
	tests := []struct {
		name        string
		pathValue   string
		expectValue int64
		expectError bool
	}{
		{
			name:        "valid int64",
			pathValue:   "9223372036854775807",
			expectValue: 9223372036854775807,
			expectError: false,
		},
		{
			name:        "invalid int64",
			pathValue:   "abc",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test/"+tt.pathValue, nil)
			req = mux.SetURLVars(req, map[string]string{"id": tt.pathValue})

			val, err := ParsePathInt64(req, "id")

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expectValue, val)
			}
		})
	}
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest("GET", "/test?page=5", nil)

	val, err := ParseQueryInt(req, "page", 1)

	assert.NoError(t, err)
	assert.Equal(t, 5, val)
}

func TestParseQueryInt_Default(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)

	val, err := ParseQueryInt(req, "page", 1)

	assert.NoError(t, err)
	assert.Equal(t, 1, val)
}

func TestParseQueryString(t *testing.T) {
	req := httptest.NewRequest("GET", "/test?filter=active", nil)

	val := ParseQueryString(req, "filter", "all")

	assert.Equal(t, "active", val)
}

func TestParseQueryString_Default(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)

	val := ParseQueryString(req, "filter", "all")

	assert.Equal(t, "all", val)
}

func TestRequireNonEmpty(t *testing.T) {
	w := httptest.NewRecorder()

	ok := RequireNonEmpty(w, "", "username")

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "username is required")
}

func TestRequirePositive(t *testing.T) {
	w := httptest.NewRecorder()

	ok := RequirePositive(w, 0, "user_id")

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "user_id must be positive")
}

// TestParseJSONComplexStruct tests parsing into a complex struct
func TestParseJSONComplexStruct(t *testing.T) {
	type User struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Age   int    `json:"age"`
	}

	body := `{"name":"John","email":"john@example.com","age":30}`
	req := httptest.NewRequest("POST", "/users", bytes.NewBufferString(body))

	var user User
	err := ParseJSON(req, &user)

	assert.NoError(t, err)
	assert.Equal(t, "John", user.Name)
	assert.Equal(t, "john@example.com", user.Email)
	assert.Equal(t, 30, user.Age)
}

// TestParseJSONEmptyBody tests parsing an empty body
func TestParseJSONEmptyBody(t *testing.T) {
	req := httptest.NewRequest("POST", "/test", bytes.NewBufferString(""))

	var dest map[string]string
	err := ParseJSON(req, &dest)

	assert.Error(t, err)
}

// BenchmarkWriteJSON benchmarks the WriteJSON function
func BenchmarkWriteJSON(b *testing.B) {
	data := map[string]string{"message": "benchmark"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		WriteJSON(w, http.StatusOK, data)
	}
}

// BenchmarkParseJSON benchmarks the ParseJSON function
func BenchmarkParseJSON(b *testing.B) {
	body, _ := json.Marshal(map[string]string{"name": "test"})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest("POST", "/test", bytes.NewBuffer(body))
		var dest map[string]string
		ParseJSON(req, &dest)
	}
}
