// Package scenario loads a YAML scenario, validates it against the embedded
// JSON Schema and assembles the simulation components it describes.
package scenario

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/contagion/pkg/sim"
)

// SupportedVersions is the schema_version range this build accepts.
const SupportedVersions = ">= 1.0.0, < 2.0.0"

const schemaURL = "https://contagion.schemas.local/scenario.schema.json"

//go:embed schema.json
var schemaJSON []byte

var (
	// ErrSchemaVersion is returned when schema_version is missing, malformed or unsupported.
	ErrSchemaVersion = errors.New("unsupported scenario schema version")
	// ErrSchemaViolation is returned when the document does not match the scenario schema.
	ErrSchemaViolation = errors.New("scenario schema violation")
)

// ConfigError is a load-time configuration error at a dotted document path
// such as contexts.work.intensity.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return "scenario: " + e.Err.Error()
	}
	return fmt.Sprintf("scenario: %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErr(path string, err error) error {
	return &ConfigError{Path: path, Err: err}
}

// Scenario is a validated scenario with its components assembled.
type Scenario struct {
	Name     string
	Path     string
	Digest   string
	Workers  int
	Document Document
	model    sim.Model
}

// Model returns the run model. Each run gets a fresh policy from Model.NewPolicy;
// every other component is immutable and shared.
func (s *Scenario) Model() sim.Model { return s.model }

// Load reads and assembles the scenario at path. Relative file references are
// resolved against the scenario's directory.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	s, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	s.Path = path
	return s, nil
}

// Parse assembles a scenario from YAML. baseDir resolves relative file references.
func Parse(data []byte, baseDir string) (*Scenario, error) {
	logger := slog.Default().With("component", "scenario")

	doc, err := Decode(data)
	if err != nil {
		return nil, err
	}

	digest := sha256.New()
	digest.Write(data)
	b := &builder{doc: doc, baseDir: baseDir, digest: digest}
	model, err := b.build()
	if err != nil {
		return nil, err
	}
	model.ScenarioDigest = "sha256:" + hex.EncodeToString(digest.Sum(nil))

	logger.Debug("scenario loaded",
		"name", doc.Name,
		"population", len(model.Population),
		"days", doc.Days,
		"digest", model.ScenarioDigest,
	)
	return &Scenario{
		Name:     doc.Name,
		Digest:   model.ScenarioDigest,
		Workers:  doc.Workers,
		Document: *doc,
		model:    model,
	}, nil
}

// Decode parses YAML, checks schema_version and validates the document
// against the scenario schema.
func Decode(data []byte) (*Document, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, configErr("", fmt.Errorf("parse yaml: %w", err))
	}
	root, ok := normalize(raw).(map[string]any)
	if !ok {
		return nil, configErr("", errors.New("document must be a mapping"))
	}
	if err := checkVersion(root["schema_version"]); err != nil {
		return nil, err
	}

	js, err := json.Marshal(root)
	if err != nil {
		return nil, configErr("", err)
	}
	if err := validate(js); err != nil {
		return nil, err
	}

	var doc Document
	dec := json.NewDecoder(bytes.NewReader(js))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, configErr("", err)
	}
	return &doc, nil
}

func checkVersion(v any) error {
	s, ok := v.(string)
	if !ok || s == "" {
		return configErr("schema_version", fmt.Errorf("%w: schema_version is required", ErrSchemaVersion))
	}
	ver, err := semver.NewVersion(s)
	if err != nil {
		return configErr("schema_version", fmt.Errorf("%w: %q: %v", ErrSchemaVersion, s, err))
	}
	c, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return configErr("schema_version", err)
	}
	if !c.Check(ver) {
		return configErr("schema_version", fmt.Errorf("%w: %s does not satisfy %s", ErrSchemaVersion, ver, SupportedVersions))
	}
	return nil
}

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("scenario schema load failed: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("scenario schema compile failed: %w", err)
	}
	return compiled, nil
})

func validate(js []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return err
	}
	var inst any
	dec := json.NewDecoder(bytes.NewReader(js))
	dec.UseNumber()
	if err := dec.Decode(&inst); err != nil {
		return configErr("", err)
	}
	err = schema.Validate(inst)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return configErr("", err)
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return configErr(dottedPath(ve.InstanceLocation), fmt.Errorf("%w: %s", ErrSchemaViolation, ve.Message))
}

// dottedPath turns a JSON pointer into contexts.work.intensity or policy.timeline[2].at.
func dottedPath(pointer string) string {
	var b strings.Builder
	for _, tok := range strings.Split(strings.TrimPrefix(pointer, "/"), "/") {
		if tok == "" {
			continue
		}
		tok = strings.NewReplacer("~1", "/", "~0", "~").Replace(tok)
		if _, err := strconv.Atoi(tok); err == nil && b.Len() > 0 {
			b.WriteString("[" + tok + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(tok)
	}
	return b.String()
}

// normalize converts YAML-decoded values into JSON-compatible ones.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case time.Time:
		return t.Format(time.DateOnly)
	default:
		return v
	}
}

// readFile reads a referenced file and folds it into the scenario digest.
func (b *builder) readFile(path, ref string) ([]byte, error) {
	if !filepath.IsAbs(ref) {
		ref = filepath.Join(b.baseDir, ref)
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, configErr(path, err)
	}
	writeDigest(b.digest, ref, data)
	return data, nil
}

func writeDigest(h hash.Hash, name string, data []byte) {
	fmt.Fprintf(h, "\x00%s\x00%d\x00", filepath.Base(name), len(data))
	h.Write(data)
}
