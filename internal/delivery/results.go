package delivery

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

var ErrResultNotFound = errors.New("result not found")

// ValidID reports whether id names a result directory.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (p *Processor) LoadResult(id string) (*Result, error) {
	if !ValidID(id) {
		return nil, ErrResultNotFound
	}
	data, err := os.ReadFile(filepath.Join(p.ResultDir, id, ResultFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, err
	}
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse result %s: %w", id, err)
	}
	return &result, nil
}

// ResultFile returns the path of a file belonging to a result.
func (p *Processor) ResultFile(id, name string) (string, error) {
	if !ValidID(id) || name != filepath.Base(name) || name == "." || name == ".." {
		return "", ErrResultNotFound
	}
	path := filepath.Join(p.ResultDir, id, name)
	if _, err := os.Stat(path); err != nil {
		return "", ErrResultNotFound
	}
	return path, nil
}
