// internal/graph/commit.go
package graph

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"drift/internal/content"
	derr "drift/internal/errors"
)

// Commit is one immutable point in the linear history.
type Commit struct {
	ID        string            `json:"id"`
	ParentID  string            `json:"parent,omitempty"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
	Snapshot  map[string]string `json:"snapshot"`
}

// commitBody is the hashed form of a commit. encoding/json writes map keys in
// sorted order, so the encoding of a given commit is stable.
type commitBody struct {
	Parent    *string           `json:"parent"`
	Message   string            `json:"message"`
	Timestamp string            `json:"timestamp"`
	Snapshot  map[string]string `json:"snapshot"`
}

// ComputeID returns the content id of c, ignoring c.ID.
func ComputeID(c *Commit) string {
	body := commitBody{
		Message:   c.Message,
		Timestamp: c.Timestamp.UTC().Format(time.RFC3339Nano),
		Snapshot:  c.Snapshot,
	}
	if c.ParentID != "" {
		parent := c.ParentID
		body.Parent = &parent
	}
	if body.Snapshot == nil {
		body.Snapshot = map[string]string{}
	}

	data, err := json.Marshal(body)
	if err != nil {
		// a struct of strings and a string map always marshals
		panic(fmt.Sprintf("encoding commit: %v", err))
	}
	return content.Hash(data)
}

// Verify checks that c.ID is the id of c's content.
func (c *Commit) Verify() error {
	if !content.ValidID(c.ID) {
		return derr.ValidationError("invalid commit id %q", c.ID)
	}
	if c.ParentID != "" && !content.ValidID(c.ParentID) {
		return derr.ValidationError("commit %s has invalid parent id %q", c.ID, c.ParentID)
	}
	if got := ComputeID(c); got != c.ID {
		return derr.ValidationError("commit %s does not match its content (computed %s)", c.ID, got)
	}
	return nil
}

// Paths returns the snapshot paths in sorted order.
func (c *Commit) Paths() []string {
	paths := make([]string, 0, len(c.Snapshot))
	for p := range c.Snapshot {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// ShortID returns the abbreviated form used in CLI output.
func (c *Commit) ShortID() string {
	if len(c.ID) < 12 {
		return c.ID
	}
	return c.ID[:12]
}

// Encode returns the JSON form stored locally and on remotes.
func (c *Commit) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// Decode parses and verifies a commit record.
func Decode(data []byte) (*Commit, error) {
	var c Commit
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, derr.ValidationError("malformed commit record: %v", err)
	}
	if c.Snapshot == nil {
		c.Snapshot = map[string]string{}
	}
	if err := c.Verify(); err != nil {
		return nil, err
	}
	return &c, nil
}
