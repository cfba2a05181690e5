// Package parameters builds the parameter document handed to infrastructure
// provisioning: where the archive lives, which object version to deploy, the
// execution role, and the stack policy guarding updates.
package parameters

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gowebpki/jcs"
	"github.com/kaptinlin/jsonschema"
)

// PolicyVariant names a stack policy statement.
type PolicyVariant string

const (
	// AllowAll permits every stack action.
	AllowAll PolicyVariant = "allow-all"
	// UpdateOnly permits update actions only.
	UpdateOnly PolicyVariant = "update-only"
)

// Parameters are the stack parameters describing the uploaded archive.
type Parameters struct {
	LambdaS3Bucket  string `json:"LambdaS3Bucket"`
	LambdaS3Key     string `json:"LambdaS3Key"`
	LambdaS3Version string `json:"LambdaS3Version"`
	LambdaRoleArn   string `json:"LambdaRoleArn"`
}

// Statement is one stack policy statement.
type Statement struct {
	Effect    string `json:"Effect"`
	Action    string `json:"Action"`
	Principal string `json:"Principal"`
	Resource  string `json:"Resource"`
}

// StackPolicy is the access-control document applied to the stack.
type StackPolicy struct {
	Statement []Statement `json:"Statement"`
}

// Document is the parameter document written next to the archive.
type Document struct {
	Parameters  Parameters  `json:"Parameters"`
	StackPolicy StackPolicy `json:"StackPolicy"`
}

// Location identifies the uploaded archive.
type Location struct {
	Bucket  string
	Key     string
	Version string
}

var (
	// ErrUnknownPolicy is returned for an unrecognized policy variant.
	ErrUnknownPolicy = errors.New("unknown stack policy")
	// ErrInvalidDocument is returned when a document fails schema validation.
	ErrInvalidDocument = errors.New("invalid parameter document")
)

//go:embed schema.json
var schemaJSON []byte

// compiledSchema compiles the embedded schema once.
//
//nolint:gochecknoglobals // Lazily compiled, read-only afterwards.
var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()

	schema, err := compiler.Compile(schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return schema, nil
})

// Policy returns the stack policy for variant.
func Policy(variant PolicyVariant) (StackPolicy, error) {
	var action string

	switch variant {
	case AllowAll:
		action = "*"
	case UpdateOnly:
		action = "Update:*"
	default:
		return StackPolicy{}, fmt.Errorf("%q: %w", string(variant), ErrUnknownPolicy)
	}

	return StackPolicy{
		Statement: []Statement{{
			Effect:    "Allow",
			Action:    action,
			Principal: "*",
			Resource:  "*",
		}},
	}, nil
}

// New builds a document for the uploaded archive.
func New(location Location, roleARN string, variant PolicyVariant) (*Document, error) {
	policy, err := Policy(variant)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Parameters: Parameters{
			LambdaS3Bucket:  location.Bucket,
			LambdaS3Key:     location.Key,
			LambdaS3Version: location.Version,
			LambdaRoleArn:   roleARN,
		},
		StackPolicy: policy,
	}

	if err = doc.Validate(); err != nil {
		return nil, err
	}

	return doc, nil
}

// Marshal renders the document as indented JSON with a trailing newline.
func (d *Document) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal parameter document: %w", err)
	}

	return append(data, '\n'), nil
}

// Validate checks the document against the embedded JSON schema.
func (d *Document) Validate() error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal parameter document: %w", err)
	}

	return ValidateJSON(data)
}

// ValidateJSON checks raw JSON against the embedded schema.
func ValidateJSON(data []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return err
	}

	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}

	return fmt.Errorf("%w: %v", ErrInvalidDocument, result.Errors)
}

// Digest returns the sha256 hex digest of the RFC 8785 canonical form,
// so formatting differences never change it.
func (d *Document) Digest() (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal parameter document: %w", err)
	}

	canonical, err := jcs.Transform(data)
	if err != nil {
		return "", fmt.Errorf("canonicalize parameter document: %w", err)
	}

	sum := sha256.Sum256(canonical)

	return hex.EncodeToString(sum[:]), nil
}

// WriteFile stores data at path, replacing any previous document.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parameter document directory: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, 0o644); err != nil { //nolint:gosec // Not a secret.
		return fmt.Errorf("write parameter document: %w", err)
	}

	return nil
}

// Read loads and validates a document from path.
func Read(path string) (*Document, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read parameter document: %w", err)
	}

	if err = ValidateJSON(data); err != nil {
		return nil, err
	}

	var doc Document
	if err = json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode parameter document: %w", err)
	}

	return &doc, nil
}
