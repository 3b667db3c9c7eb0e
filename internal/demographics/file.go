package demographics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-git/go-billy/v6"
	"gopkg.in/yaml.v3"

	"github.com/lewtec/pagetagger/internal/domain"
)

// FileSource reads demographics from a YAML file of flat keys:
//
//	ageYears: 7
//	sex: female
//	residence: urban
//
// A missing file yields empty demographics.
type FileSource struct {
	FS   billy.Filesystem
	Path string
}

func (s FileSource) Demographics(ctx context.Context) (domain.Demographics, error) {
	if s.Path == "" {
		return domain.Demographics{}, nil
	}
	f, err := s.FS.Open(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.Demographics{}, nil
	}
	if err != nil {
		return domain.Demographics{}, err
	}
	defer f.Close()

	values := map[string]string{}
	if err := yaml.NewDecoder(f).Decode(&values); err != nil && !errors.Is(err, io.EOF) {
		return domain.Demographics{}, fmt.Errorf("decode %s: %w", s.Path, err)
	}
	return Parse(values), nil
}

// WriteTemplate writes an empty demographics file listing every key.
func WriteTemplate(w io.Writer) error {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range Keys {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: k},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: ""},
		)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return err
	}
	return enc.Close()
}
