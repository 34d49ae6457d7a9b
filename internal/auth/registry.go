// Package auth owns the authoritative set of bearer tokens for one node.
package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
)

// fileSchema is the on-disk shape of the token file: a single JSON object
// with one array field.
type fileSchema struct {
	APIKeys []string `json:"api_keys"`
}

// Registry is the authoritative set of valid tokens on this node, backed
// by a single JSON file. Writes are serialized by mu so concurrent /auth
// and /registerkey calls never corrupt the file.
type Registry struct {
	mu     sync.Mutex
	path   string
	tokens map[string]struct{}
}

// Recover loads path if it exists, or creates it empty. This is the only
// read of the file after startup — every later token lives only in
// memory plus whatever gets appended by Add.
func Recover(path string) (*Registry, error) {
	r := &Registry{path: path, tokens: make(map[string]struct{})}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		if werr := r.writeLocked(fileSchema{APIKeys: []string{}}); werr != nil {
			return nil, fmt.Errorf("create token file: %w", werr)
		}
		return r, nil
	case err != nil:
		return nil, fmt.Errorf("read token file: %w", err)
	}

	var schema fileSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("decode token file: %w", err)
	}
	for _, t := range schema.APIKeys {
		r.tokens[t] = struct{}{}
	}
	return r, nil
}

// Mint generates a new canonical UUIDv4 token, adds it, and returns it.
func (r *Registry) Mint() (string, error) {
	token := uuid.NewString()
	if err := r.Add(token); err != nil {
		return "", err
	}
	return token, nil
}

// Add idempotently adds token to the in-memory set and, if it was not
// already present, appends it to the on-disk file. The whole file is
// rewritten on every addition — fine at the scale this cluster targets; a
// high-churn cluster would want an append-only log with periodic
// compaction instead.
func (r *Registry) Add(token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tokens[token]; ok {
		return nil
	}
	r.tokens[token] = struct{}{}
	return r.writeLocked(fileSchema{APIKeys: r.allLocked()})
}

// IsValid reports whether token is a member of the current token set.
func (r *Registry) IsValid(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tokens[token]
	return ok
}

// All returns a snapshot of every known token, used to answer /mkcluster.
func (r *Registry) All() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allLocked()
}

func (r *Registry) allLocked() []string {
	out := make([]string, 0, len(r.tokens))
	for t := range r.tokens {
		out = append(out, t)
	}
	return out
}

// writeLocked must be called with mu held.
func (r *Registry) writeLocked(schema fileSchema) error {
	data, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("marshal token file: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return os.Rename(tmp, r.path)
}
