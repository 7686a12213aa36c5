package risk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// VersionedGetter reads a parameter value together with its version.
type VersionedGetter interface {
	GetParameterVersion(ctx context.Context, name string) (string, int64, error)
}

// ParamSource loads the lexicon YAML from a Parameter Store parameter.
type ParamSource struct {
	getter VersionedGetter
	name   string
}

// NewParamSource reads the lexicon from parameter name.
func NewParamSource(g VersionedGetter, name string) (*ParamSource, error) {
	if g == nil {
		return nil, errors.New("risk: parameter getter must not be nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("risk: parameter name must not be empty")
	}
	return &ParamSource{getter: g, name: name}, nil
}

func (s *ParamSource) Load(ctx context.Context) ([]byte, string, error) {
	v, version, err := s.getter.GetParameterVersion(ctx, s.name)
	if err != nil {
		return nil, "", err
	}
	return []byte(v), "ssm:" + strconv.FormatInt(version, 10), nil
}

// FileSource loads the lexicon from a local YAML file.
type FileSource struct {
	path string
}

// NewFileSource reads the lexicon from path.
func NewFileSource(path string) (*FileSource, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("risk: lexicon path must not be empty")
	}
	return &FileSource{path: path}, nil
}

// Path returns the watched file path.
func (s *FileSource) Path() string { return s.path }

func (s *FileSource) Load(_ context.Context) ([]byte, string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, "", fmt.Errorf("risk: read %s: %w", s.path, err)
	}
	sum := sha256.Sum256(data)
	return data, "file:" + hex.EncodeToString(sum[:8]), nil
}
