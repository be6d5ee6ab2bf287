package sync

import (
	"testing"
	"testing/fstest"

	"github.com/Joyfolk/boxfs/boxerr"
)

func TestCompareFS(t *testing.T) {
	tests := []struct {
		name     string
		origFS   fstest.MapFS
		targetFS fstest.MapFS
		wantKind boxerr.Kind
		wantErr  bool
	}{
		{
			name: "identical filesystems",
			origFS: fstest.MapFS{
				"file.txt":       {Data: []byte("hello")},
				"dir/nested.txt": {Data: []byte("world")},
			},
			targetFS: fstest.MapFS{
				"file.txt":       {Data: []byte("hello")},
				"dir/nested.txt": {Data: []byte("world")},
			},
			wantErr: false,
		},
		{
			name: "different file contents",
			origFS: fstest.MapFS{
				"file.txt": {Data: []byte("hello")},
			},
			targetFS: fstest.MapFS{
				"file.txt": {Data: []byte("HELLO")},
			},
			wantErr:  true,
			wantKind: boxerr.Invalid,
		},
		{
			name: "missing file in target",
			origFS: fstest.MapFS{
				"file.txt": {Data: []byte("hello")},
			},
			targetFS: fstest.MapFS{},
			wantErr:  true,
			wantKind: boxerr.NotFound,
		},
		{
			name: "extra file in target",
			origFS: fstest.MapFS{
				"file.txt": {Data: []byte("hello")},
			},
			targetFS: fstest.MapFS{
				"file.txt":  {Data: []byte("hello")},
				"extra.txt": {Data: []byte("extra")},
			},
			wantErr:  true,
			wantKind: boxerr.AlreadyExists,
		},
		{
			name: "directory vs file mismatch",
			origFS: fstest.MapFS{
				"dir/file.txt": {Data: []byte("hello")},
			},
			targetFS: fstest.MapFS{
				"dir": {Data: []byte("not a dir")},
			},
			wantErr:  true,
			wantKind: boxerr.Invalid,
		},
		{
			name: "different file size",
			origFS: fstest.MapFS{
				"file.txt": {Data: []byte("hello")},
			},
			targetFS: fstest.MapFS{
				"file.txt": {Data: []byte("hello world")},
			},
			wantErr:  true,
			wantKind: boxerr.Invalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CompareFS(tt.origFS, tt.targetFS)

			if tt.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr && !boxerr.Is(err, tt.wantKind) {
				t.Fatalf("error = %v, want kind %v", err, tt.wantKind)
			}
		})
	}
}
