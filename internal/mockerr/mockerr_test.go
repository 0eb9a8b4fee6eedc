package mockerr

import (
	"io/fs"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindOf_ThroughWrapping(t *testing.T) {
	base := E(ConfigParse, "importer.Parse", "bad document", nil)
	wrapped := errors.Wrap(base, "import config.json")

	assert.Equal(t, ConfigParse, KindOf(wrapped))
	assert.True(t, Is(wrapped, ConfigParse))
	assert.False(t, Is(wrapped, FileRead))
	assert.Equal(t, Other, KindOf(errors.New("plain")))
	assert.False(t, Is(nil, Other))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"not found", NotFound("GET", "/a"), http.StatusNotFound, "Route not found"},
		{"file read", E(FileRead, "response.Build", "read store/a.json", fs.ErrNotExist), http.StatusInternalServerError, "Response file error : file does not exist"},
		{"file read without cause", E(FileRead, "response.Build", "outside root", nil), http.StatusInternalServerError, "Response file error : outside root"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "Internal error : boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := HTTPStatus(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestError_Message(t *testing.T) {
	err := E(ImportFailure, "importer.Import", "", errors.New("disk full"))
	assert.Equal(t, "importer.Import: import failure: disk full", err.Error())
	assert.Equal(t, "disk full", errors.Cause(err.Unwrap()).Error())
}
