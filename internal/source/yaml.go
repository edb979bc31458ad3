package source

import (
	"bytes"
	"chschema/internal/schema"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// document is one YAML document. It is either a single definition or a
// group that shares a default database.
type document struct {
	schema.Definition `yaml:",inline"`
	Definitions       []schema.Definition `yaml:"definitions"`
}

// YAMLSource reads *.yaml and *.yml files under the configured paths.
// Files may hold several documents separated by ---.
type YAMLSource struct {
	fs    afero.Fs
	paths []string
}

func NewYAMLSource(fsys afero.Fs, paths ...string) *YAMLSource {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &YAMLSource{fs: fsys, paths: paths}
}

func (s *YAMLSource) Name() string {
	return "yaml:" + strings.Join(s.paths, ",")
}

func (s *YAMLSource) Definitions(ctx context.Context) ([]schema.Definition, error) {
	files, err := s.files()
	if err != nil {
		return nil, err
	}

	var defs []schema.Definition
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := afero.ReadFile(s.fs, file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		fileDefs, err := decodeDefinitions(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}
		defs = append(defs, fileDefs...)
	}
	return defs, nil
}

// files returns every declaration file in lexicographic path order.
func (s *YAMLSource) files() ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, root := range s.paths {
		info, err := s.fs.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("failed to stat schema path %s: %w", root, err)
		}
		if !info.IsDir() {
			if !seen[root] {
				seen[root] = true
				files = append(files, root)
			}
			continue
		}
		err = afero.Walk(s.fs, root, func(path string, info fs.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}
			if !seen[path] {
				seen[path] = true
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk schema path %s: %w", root, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

func decodeDefinitions(data []byte) ([]schema.Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var defs []schema.Definition
	for i := 0; ; i++ {
		var doc document
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i+1, err)
		}
		if len(doc.Definitions) == 0 {
			if doc.Kind == "" && doc.Name == "" {
				continue
			}
			defs = append(defs, doc.Definition)
			continue
		}
		if doc.Kind != "" || doc.Name != "" {
			return nil, fmt.Errorf("document %d: a definitions list cannot also declare an object", i+1)
		}
		for _, def := range doc.Definitions {
			if def.Database == "" {
				def.Database = doc.Database
			}
			defs = append(defs, def)
		}
	}
	return defs, nil
}
