package metadata

import (
	"datamapper/pkg/domain"
	"encoding/json"
	"fmt"
	"io"
)

// Declaration is one entry of a declaration file.
type Declaration struct {
	Type EntityType `json:"type"`
	domain.EntityMetadata
}

type declarationFile struct {
	Entities []Declaration `json:"entities"`
}

// DecodeJSON reads a declaration file of the form {"entities": [...]}.
func DecodeJSON(r io.Reader) ([]Declaration, error) {
	var file declarationFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode declarations: %w", err)
	}
	for i, d := range file.Entities {
		if d.Type == "" {
			file.Entities[i].Type = EntityType(d.TableName)
		}
	}
	return file.Entities, nil
}

// LoadJSON declares every entry of a declaration file on r.
func (r *Registry) LoadJSON(src io.Reader) error {
	decls, err := DecodeJSON(src)
	if err != nil {
		return err
	}
	for _, d := range decls {
		md := d.EntityMetadata.Clone()
		r.Declare(d.Type, func(target *domain.EntityMetadata) { *target = md })
	}
	return nil
}
