package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/dshills/musicbox/internal/plugin/source"
)

// Descriptor describes an installable plugin.
type Descriptor struct {
	// Identity
	ID          string `json:"id" yaml:"id" validate:"required,pluginid" jsonschema:"pattern=^[a-zA-Z0-9_-]+$"`
	Name        string `json:"name" yaml:"name" validate:"required"`
	Version     string `json:"version" yaml:"version" validate:"required,version" jsonschema:"example=1.0.0"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Author      string `json:"author,omitempty" yaml:"author,omitempty"`
	Category    string `json:"category,omitempty" yaml:"category,omitempty"`

	// Main is a local path, file:// or http(s):// URL, or a data:text/x-lua URI.
	Main string `json:"main" yaml:"main" validate:"required"`

	Permissions  []string `json:"permissions,omitempty" yaml:"permissions,omitempty" validate:"dive,required"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty" validate:"dive,pluginid"`
	SizeBytes    int64    `json:"sizeBytes,omitempty" yaml:"sizeBytes,omitempty" validate:"gte=0"`
}

// Descriptor file names looked up in a plugin directory, in order.
var descriptorFiles = []string{"plugin.json", "plugin.yaml", "plugin.yml"}

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("pluginid", func(fl validator.FieldLevel) bool {
		return idPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("version", func(fl validator.FieldLevel) bool {
		return ValidVersion(fl.Field().String())
	})
	return v
}

// ValidVersion reports whether v is a full MAJOR.MINOR.PATCH semantic
// version such as "1.2.0". A leading "v" is accepted; the "1" and "1.0"
// shorthands are not.
func ValidVersion(v string) bool {
	if v == "" {
		return false
	}
	sv := "v" + strings.TrimPrefix(v, "v")
	if !semver.IsValid(sv) {
		return false
	}
	core := strings.TrimSuffix(strings.TrimSuffix(sv, semver.Build(sv)), semver.Prerelease(sv))
	return strings.Count(core, ".") == 2
}

// CompareVersions compares two descriptor versions like semver.Compare.
func CompareVersions(a, b string) int {
	return semver.Compare("v"+strings.TrimPrefix(a, "v"), "v"+strings.TrimPrefix(b, "v"))
}

// Validate checks required fields, the id pattern and the version.
func (d *Descriptor) Validate() error {
	if d == nil {
		return &ConfigError{Err: fmt.Errorf("%w: descriptor is nil", ErrInvalidDescriptor)}
	}
	err := validate.Struct(d)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ConfigError{PluginID: d.ID, Err: fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)}
	}
	problems := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, fieldProblem(fe))
	}
	return &ConfigError{
		PluginID: d.ID,
		Err:      fmt.Errorf("%w: %w", ErrInvalidDescriptor, errors.Join(problems...)),
	}
}

func fieldProblem(fe validator.FieldError) error {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", field)
	case "pluginid":
		return fmt.Errorf("%s %q must be letters, digits, '-' or '_'", field, fe.Value())
	case "version":
		return fmt.Errorf("%s %q is not a semantic version", field, fe.Value())
	default:
		return fmt.Errorf("%s failed %q", field, fe.Tag())
	}
}

// Clone returns a deep copy.
func (d *Descriptor) Clone() *Descriptor {
	if d == nil {
		return nil
	}
	c := *d
	c.Permissions = slices.Clone(d.Permissions)
	c.Dependencies = slices.Clone(d.Dependencies)
	return &c
}

// Equal reports whether two descriptors hold the same values.
func (d *Descriptor) Equal(o *Descriptor) bool {
	if d == nil || o == nil {
		return d == o
	}
	return d.ID == o.ID &&
		d.Name == o.Name &&
		d.Version == o.Version &&
		d.Description == o.Description &&
		d.Author == o.Author &&
		d.Category == o.Category &&
		d.Main == o.Main &&
		d.SizeBytes == o.SizeBytes &&
		slices.Equal(d.Permissions, o.Permissions) &&
		slices.Equal(d.Dependencies, o.Dependencies)
}

// MarshalDescriptor encodes d as persisted JSON.
func MarshalDescriptor(d *Descriptor) ([]byte, error) {
	return json.Marshal(d)
}

// UnmarshalDescriptor decodes persisted JSON.
func UnmarshalDescriptor(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}
	return &d, nil
}

// ParseDescriptor decodes a descriptor file body. format is "json" or
// "yaml".
func ParseDescriptor(data []byte, format string) (*Descriptor, error) {
	var d Descriptor
	var err error
	switch format {
	case "json":
		err = json.Unmarshal(data, &d)
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &d)
	default:
		return nil, fmt.Errorf("unsupported descriptor format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("parse descriptor: %w", err)
	}
	return &d, nil
}

// LoadDescriptorFile reads plugin.json or plugin.yaml. path may also name a
// directory containing one of them. A relative local main reference is
// made absolute against the descriptor's directory.
func LoadDescriptorFile(path string) (*Descriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}
	if info.IsDir() {
		found := ""
		for _, name := range descriptorFiles {
			candidate := filepath.Join(path, name)
			if _, err := os.Stat(candidate); err == nil {
				found = candidate
				break
			}
		}
		if found == "" {
			return nil, fmt.Errorf("no %s in %s", strings.Join(descriptorFiles, " or "), path)
		}
		path = found
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	d, err := ParseDescriptor(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if kind, err := source.Classify(d.Main); err == nil && kind == source.KindFile {
		if !strings.HasPrefix(d.Main, "file://") && !filepath.IsAbs(d.Main) {
			abs, err := filepath.Abs(filepath.Join(filepath.Dir(path), filepath.FromSlash(d.Main)))
			if err == nil {
				d.Main = abs
			}
		}
	}
	return d, nil
}

// DescriptorSchema returns the JSON schema of a descriptor file.
func DescriptorSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(&Descriptor{})
	schema.Title = "MusicBox plugin descriptor"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}
