package paths

import (
	"path/filepath"
	"testing"

	"github.com/bmatcuk/doublestar/v4"
)

// ///////////////////////////////////////////////
// Constant Value Tests
// ///////////////////////////////////////////////

func TestConstantValues(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"SrcDir", SrcDir, "src"},
		{"BuildDir", BuildDir, "dist"},
		{"ConfigFile", ConfigFile, "assetpipe.toml"},
		{"ConfigFileYAML", ConfigFileYAML, "assetpipe.yaml"},
		{"LockFile", LockFile, ".assetpipe.lock"},
		{"LogFile", LogFile, "assetpipe.log"},
		{"SpriteFile", SpriteFile, "sprites.svg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Table Tests
// ///////////////////////////////////////////////

func TestTable(t *testing.T) {
	tests := []struct {
		cat   Category
		src   []string
		watch []string
		base  string
		dist  string
	}{
		{HTML, []string{"src/*.html"}, []string{"src/*.html"}, "src", "dist/"},
		{Styles, []string{"src/scss/**/*.scss"}, []string{"src/scss/**/*.scss"}, "src/scss", "dist/css/"},
		{Scripts, []string{"src/js/main.js"}, []string{"src/js/**/*.js"}, "src/js", "dist/js/"},
		{Images, []string{"src/img/**/*.{jpg,jpeg,png,svg,gif}"}, []string{"src/img/**/*.{jpg,jpeg,png,svg,gif}"}, "src/img", "dist/img/"},
		{WebP, []string{"src/img/**/*.{jpg,jpeg,png}"}, []string{"src/img/**/*.{jpg,jpeg,png}"}, "src/img", "dist/img/"},
		{Sprites, []string{"src/sprites/**/*.svg"}, []string{"src/sprites/**/*.svg"}, "src/sprites", "dist/sprites/"},
		{Assets, []string{"src/fonts/**/*.*", "src/icons/**/*.*"}, []string{"src/fonts/**/*.*", "src/icons/**/*.*"}, "src", "dist/"},
	}

	if len(tests) != len(Categories) {
		t.Fatalf("table test covers %d categories, Categories has %d", len(tests), len(Categories))
	}

	for _, tt := range tests {
		t.Run(string(tt.cat), func(t *testing.T) {
			e, ok := Lookup(tt.cat)
			if !ok {
				t.Fatalf("Lookup(%q) not found", tt.cat)
			}
			if !equal(e.Src, tt.src) {
				t.Errorf("Src = %v, want %v", e.Src, tt.src)
			}
			if !equal(e.Watch, tt.watch) {
				t.Errorf("Watch = %v, want %v", e.Watch, tt.watch)
			}
			if e.Base != tt.base {
				t.Errorf("Base = %q, want %q", e.Base, tt.base)
			}
			if e.Dist != tt.dist {
				t.Errorf("Dist = %q, want %q", e.Dist, tt.dist)
			}
			for _, p := range append(e.Src, e.Watch...) {
				if !doublestar.ValidatePattern(p) {
					t.Errorf("invalid glob %q", p)
				}
			}
		})
	}
}

func TestLookup_ReturnsCopies(t *testing.T) {
	e, _ := Lookup(Styles)
	e.Src[0] = "mutated"

	again, _ := Lookup(Styles)
	if again.Src[0] != "src/scss/**/*.scss" {
		t.Errorf("table was mutated through Lookup result: %q", again.Src[0])
	}
}

func TestLookup_Unknown(t *testing.T) {
	if _, ok := Lookup(Category("nope")); ok {
		t.Error("Lookup of unknown category should report false")
	}
}

func TestGlobMatching(t *testing.T) {
	tests := []struct {
		cat  Category
		path string
		want bool
	}{
		{HTML, "src/index.html", true},
		{HTML, "src/pages/about.html", false},
		{Styles, "src/scss/main.scss", true},
		{Styles, "src/scss/base/_reset.scss", true},
		{Scripts, "src/js/main.js", true},
		{Scripts, "src/js/lib/util.js", false},
		{Images, "src/img/a/b.png", true},
		{Images, "src/img/logo.svg", true},
		{Images, "src/img/notes.txt", false},
		{WebP, "src/img/photo.jpg", true},
		{WebP, "src/img/logo.svg", false},
		{Sprites, "src/sprites/icons/arrow.svg", true},
		{Assets, "src/fonts/inter.woff2", true},
		{Assets, "src/icons/favicon.ico", true},
		{Assets, "src/fonts/LICENSE", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			e, _ := Lookup(tt.cat)
			got := false
			for _, p := range e.Src {
				if ok, _ := doublestar.Match(p, tt.path); ok {
					got = true
				}
			}
			if got != tt.want {
				t.Errorf("%s matches %q = %v, want %v", tt.cat, tt.path, got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Output Mapping Tests
// ///////////////////////////////////////////////

func TestEntryOutput(t *testing.T) {
	tests := []struct {
		cat     Category
		src     string
		ext     string
		want    string
		wantErr bool
	}{
		{HTML, "src/index.html", "", "dist/index.html", false},
		{Styles, "src/scss/main.scss", ".min.css", "dist/css/main.min.css", false},
		{Styles, "src/scss/pages/home.scss", ".css", "dist/css/pages/home.css", false},
		{Scripts, "src/js/main.js", ".min.js", "dist/js/main.min.js", false},
		{Images, "src/img/a/b.png", "", "dist/img/a/b.png", false},
		{WebP, "src/img/photo.jpg", ".webp", "dist/img/photo.webp", false},
		{Assets, "src/fonts/x.woff2", "", "dist/fonts/x.woff2", false},
		{Assets, "src/icons/favicon.ico", "", "dist/icons/favicon.ico", false},
		{Images, "other/a.png", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			e, _ := Lookup(tt.cat)
			got, err := e.Output(tt.src, tt.ext)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Output() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Output(%q, %q) = %q, want %q", tt.src, tt.ext, got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Project Method Tests
// ///////////////////////////////////////////////

func TestProjectMethods(t *testing.T) {
	root := filepath.Join("home", "user", "site")
	p := Project{Root: root}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"Src", p.Src(), filepath.Join(root, "src")},
		{"Dist", p.Dist(), filepath.Join(root, "dist")},
		{"Config", p.Config(), filepath.Join(root, "assetpipe.toml")},
		{"ConfigYAML", p.ConfigYAML(), filepath.Join(root, "assetpipe.yaml")},
		{"Lock", p.Lock(), filepath.Join(root, ".assetpipe.lock")},
		{"Abs", p.Abs("dist/css/main.css"), filepath.Join(root, "dist", "css", "main.css")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s() = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
