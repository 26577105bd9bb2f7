package media

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

func writeFiles(t *testing.T, fsys afero.Fs, paths ...string) {
	t.Helper()
	for _, p := range paths {
		if err := afero.WriteFile(fsys, p, []byte("data"), 0644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
}

func TestDiscover_FiltersAndSorts(t *testing.T) {
	fsys := afero.NewMemMapFs()
	root := "/in"
	writeFiles(t, fsys,
		"/in/z.mp4",
		"/in/b.JPG",
		"/in/refmodel.jpg",
		"/in/notes.txt",
		"/in/sub/a.MoV",
		"/in/sub/deeper/c.webp",
		"/in/sub/refmodel.jpg",
		"/in/noext",
	)

	files, err := Discover(fsys, root, "refmodel.jpg")
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	want := []string{
		"/in/b.JPG",
		"/in/sub/a.MoV",
		"/in/sub/deeper/c.webp",
		"/in/z.mp4",
	}
	if len(files) != len(want) {
		t.Fatalf("got %d files, want %d: %+v", len(files), len(want), files)
	}
	for i, f := range files {
		if f.Path != want[i] {
			t.Errorf("files[%d] = %s, want %s", i, f.Path, want[i])
		}
	}

	if files[0].Kind != KindPhoto {
		t.Errorf("b.JPG kind = %s, want photo", files[0].Kind)
	}
	if files[1].Kind != KindVideo {
		t.Errorf("a.MoV kind = %s, want video", files[1].Kind)
	}
	if files[3].Size != 4 {
		t.Errorf("z.mp4 size = %d, want 4", files[3].Size)
	}
}

func TestDiscover_Deterministic(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFiles(t, fsys, "/in/c.png", "/in/a.png", "/in/b.mkv")

	first, err := Discover(fsys, "/in", "refmodel.jpg")
	if err != nil {
		t.Fatal(err)
	}
	second, err := Discover(fsys, "/in", "refmodel.jpg")
	if err != nil {
		t.Fatal(err)
	}
	for i := range first {
		if first[i].Path != second[i].Path {
			t.Fatalf("order differs at %d: %s vs %s", i, first[i].Path, second[i].Path)
		}
	}
}

func TestDiscover_Empty(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFiles(t, fsys, "/in/refmodel.jpg", "/in/readme.md")

	files, err := Discover(fsys, "/in", "refmodel.jpg")
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(files) != 0 {
		t.Errorf("got %d files, want 0", len(files))
	}
}

func TestDiscover_MissingRoot(t *testing.T) {
	if _, err := Discover(afero.NewMemMapFs(), "/nope", "refmodel.jpg"); err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		ext  string
		want Kind
		ok   bool
	}{
		{".mp4", KindVideo, true},
		{".WEBM", KindVideo, true},
		{".jpeg", KindPhoto, true},
		{".TIFF", KindPhoto, true},
		{".gif", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := Classify(tt.ext)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Classify(%q) = (%q, %v), want (%q, %v)", tt.ext, got, ok, tt.want, tt.ok)
		}
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"a.mp4", "a_swapped.mp4"},
		{"b.JPG", "b_swapped.JPG"},
		{"clip.final.mov", "clip.final_swapped.mov"},
	}
	for _, tt := range tests {
		got := OutputPath(File{Name: tt.name}, "/out")
		if want := filepath.Join("/out", tt.want); got != want {
			t.Errorf("OutputPath(%s) = %s, want %s", tt.name, got, want)
		}
	}
}
