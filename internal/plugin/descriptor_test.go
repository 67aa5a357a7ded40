package plugin

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validDescriptor() *Descriptor {
	return &Descriptor{
		ID:          "now-playing",
		Name:        "Now Playing",
		Version:     "1.0.0",
		Main:        "main.lua",
		Permissions: []string{"player", "ui"},
	}
}

func TestDescriptorValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *Descriptor)
		wantErr string
	}{
		{"valid", func(*Descriptor) {}, ""},
		{"v prefix", func(d *Descriptor) { d.Version = "v2.1.0" }, ""},
		{"prerelease", func(d *Descriptor) { d.Version = "1.0.0-beta.1" }, ""},
		{"missing id", func(d *Descriptor) { d.ID = "" }, "id is required"},
		{"bad id", func(d *Descriptor) { d.ID = "now playing" }, "id"},
		{"missing name", func(d *Descriptor) { d.Name = "" }, "name is required"},
		{"missing version", func(d *Descriptor) { d.Version = "" }, "version is required"},
		{"bad version", func(d *Descriptor) { d.Version = "one" }, "not a semantic version"},
		{"major only", func(d *Descriptor) { d.Version = "1" }, "not a semantic version"},
		{"major minor", func(d *Descriptor) { d.Version = "1.0" }, "not a semantic version"},
		{"v major", func(d *Descriptor) { d.Version = "v2" }, "not a semantic version"},
		{"short prerelease", func(d *Descriptor) { d.Version = "1.0-rc.1" }, "not a semantic version"},
		{"build metadata", func(d *Descriptor) { d.Version = "1.0.0+20260101" }, ""},
		{"underscore id", func(d *Descriptor) { d.ID = "_scratch" }, ""},
		{"dash id", func(d *Descriptor) { d.ID = "-beta" }, ""},
		{"missing main", func(d *Descriptor) { d.Main = "" }, "main is required"},
		{"empty permission", func(d *Descriptor) { d.Permissions = []string{""} }, "permissions"},
		{"bad dependency", func(d *Descriptor) { d.Dependencies = []string{"a b"} }, "dependencies"},
		{"negative size", func(d *Descriptor) { d.SizeBytes = -1 }, "sizeBytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDescriptor()
			tt.mutate(d)
			err := d.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("err = %T, want *ConfigError", err)
			}
			if !errors.Is(err, ErrInvalidDescriptor) {
				t.Errorf("err does not wrap ErrInvalidDescriptor: %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestDescriptorNil(t *testing.T) {
	var d *Descriptor
	if err := d.Validate(); !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("err = %v", err)
	}
}

func TestDescriptorCloneIsDeep(t *testing.T) {
	d := validDescriptor()
	c := d.Clone()
	c.Permissions[0] = "library"
	if d.Permissions[0] != "player" {
		t.Error("clone shares the permissions slice")
	}
	if d.Equal(c) {
		t.Error("Equal ignored permissions")
	}
}

func TestCompareVersions(t *testing.T) {
	if CompareVersions("1.2.0", "v1.10.0") >= 0 {
		t.Error("1.2.0 should sort before 1.10.0")
	}
	if CompareVersions("2.0.0", "2.0.0") != 0 {
		t.Error("equal versions compare unequal")
	}
}

func TestLoadDescriptorFile(t *testing.T) {
	dir := t.TempDir()

	yamlBody := "id: lyrics\nname: Lyrics\nversion: 0.3.1\nmain: src/main.lua\npermissions:\n  - player\n"
	if err := os.WriteFile(filepath.Join(dir, "plugin.yaml"), []byte(yamlBody), 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := LoadDescriptorFile(dir)
	if err != nil {
		t.Fatalf("LoadDescriptorFile: %v", err)
	}
	if d.ID != "lyrics" || d.Version != "0.3.1" {
		t.Errorf("decoded %+v", d)
	}
	want := filepath.Join(dir, "src", "main.lua")
	if d.Main != want {
		t.Errorf("Main = %q, want %q", d.Main, want)
	}

	jsonPath := filepath.Join(dir, "remote.json")
	jsonBody := `{"id":"remote","name":"Remote","version":"1.0.0","main":"https://example.com/p.lua"}`
	if err := os.WriteFile(jsonPath, []byte(jsonBody), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err = LoadDescriptorFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	if d.Main != "https://example.com/p.lua" {
		t.Errorf("remote main rewritten to %q", d.Main)
	}
}

func TestLoadDescriptorFileErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadDescriptorFile(dir); err == nil {
		t.Error("empty directory accepted")
	}
	bad := filepath.Join(dir, "plugin.toml")
	if err := os.WriteFile(bad, []byte("id = 1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadDescriptorFile(bad); err == nil {
		t.Error("unsupported format accepted")
	}
}

func TestDescriptorSchema(t *testing.T) {
	data, err := DescriptorSchema()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"id"`, `"main"`, `"permissions"`, "MusicBox plugin descriptor"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("schema missing %s", want)
		}
	}
}
