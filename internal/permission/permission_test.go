package permission

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilesystem(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	file := filepath.Join(dir, "photo.jpg")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name        string
		path        string
		wantRequest Status
		wantCheck   Status
	}{
		{"readable directory", dir, Granted, Granted},
		{"missing directory", filepath.Join(dir, "missing"), Undetermined, Denied},
		{"not a directory", file, Restricted, Denied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFilesystem(tt.path)
			assert.Equal(t, tt.wantRequest, f.Request(ctx))
			assert.Equal(t, tt.wantCheck, f.Check(ctx))
		})
	}
}

func TestFilesystem_Unreadable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	dir := filepath.Join(t.TempDir(), "locked")
	if err := os.Mkdir(dir, 0000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(dir, 0755) })

	f := NewFilesystem(dir)
	assert.Equal(t, Denied, f.Request(context.Background()))
	assert.Equal(t, Denied, f.Check(context.Background()))
}

func TestRequire(t *testing.T) {
	assert.NoError(t, Require(Granted))

	for _, status := range []Status{Denied, Restricted, Undetermined} {
		err := Require(status)
		assert.ErrorIs(t, err, ErrNotGranted)

		var permErr *Error
		assert.True(t, errors.As(err, &permErr))
		assert.Equal(t, status, permErr.Status)
	}
}

func TestStatic(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, Granted, Static(Granted).Check(ctx))
	assert.Equal(t, Restricted, Static(Restricted).Request(ctx))
	assert.Equal(t, Denied, Static(Restricted).Check(ctx))
}
