package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	forgeerrors "github.com/mrz1836/forge/internal/errors"
)

func TestCleanPath(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"src/app.js", "src/app.js", false},
		{"/workspace/src/app.js", "src/app.js", false},
		{"/src/app.js", "src/app.js", false},
		{"./src//app.js", "src/app.js", false},
		{"/workspace", ".", false},
		{"", ".", false},
		{"../etc/passwd", "", true},
		{"src/../../x", "", true},
		{`src\win\file.txt`, "src/win/file.txt", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CleanPath("/workspace", tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, forgeerrors.ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExcluded(t *testing.T) {
	tests := map[string]bool{
		"src/app.js":                   false,
		"node_modules":                 true,
		"node_modules/react/index.js":  true,
		"packages/a/node_modules/b.js": true,
		".git/HEAD":                    true,
		".forge/server.log":            true,
		"builder/file.js":              false,
		"app/__pycache__/x.pyc":        true,
		"README.md":                    false,
	}
	for p, want := range tests {
		assert.Equal(t, want, Excluded(p), p)
	}
}

func TestIsServerCommand(t *testing.T) {
	tests := map[string]bool{
		"npm start":                        true,
		"npm run dev":                      true,
		"node server.js":                   true,
		"node server":                      true,
		"node .":                           true,
		"node dist/index.mjs":              true,
		"node -e 'console.log(1)'":         false,
		"node":                             false,
		"python app.py":                    true,
		"python3 main.py":                  true,
		"flask run --host 0.0.0.0":         true,
		"uvicorn main:app":                 true,
		"go run .":                         true,
		"rails s":                          true,
		"cd api && npm start":              true,
		"npm install":                      false,
		"node --check app.js":              false,
		"python -m pytest":                 false,
		"go build ./...":                   false,
		"npm run build":                    false,
		"python3 manage.py runserver 8000": true,
		"python3 -m http.server 8000":      true,
	}
	for cmd, want := range tests {
		assert.Equal(t, want, IsServerCommand(cmd), cmd)
	}
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, `'plain'`, ShellQuote("plain"))
	assert.Equal(t, `'it'"'"'s'`, ShellQuote("it's"))
}
