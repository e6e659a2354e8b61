// Package batchfile loads batch definitions for the command line client
package batchfile

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/policydesk/api/internal/model"
)

// Content is the structured form of the shared applyContent text
type Content struct {
	Category    string            `toml:"category"`
	DirectInput *bool             `toml:"direct_input"`
	Fields      map[string]string `toml:"fields"`
	FreeText    string            `toml:"free_text"`
}

// Target is one row of the batch
type Target struct {
	ID           string   `toml:"id"`
	AccessGroups []string `toml:"access_groups"`
}

// File is a batch definition
type File struct {
	ApplyDate    string   `toml:"apply_date"`
	ApplyContent string   `toml:"apply_content"`
	Content      *Content `toml:"content"`
	Register     bool     `toml:"register"`
	Retries      int      `toml:"retries"`
	Timeout      string   `toml:"timeout"`
	Targets      []Target `toml:"target"`

	timeout time.Duration
}

// Validate checks the file and fills in defaults
func (f *File) Validate() error {
	if f.ApplyDate == "" {
		return fmt.Errorf("apply_date is required")
	}
	if f.ApplyContent == "" && f.Content == nil {
		return fmt.Errorf("apply_content or [content] is required")
	}
	if len(f.Targets) == 0 {
		return fmt.Errorf("at least one [[target]] is required")
	}
	for i, t := range f.Targets {
		if t.ID == "" {
			return fmt.Errorf("target %d: id is required", i)
		}
	}
	if f.Retries < 0 {
		f.Retries = 0
	}
	f.timeout = 2 * time.Hour // Default
	if f.Timeout != "" {
		d, err := time.ParseDuration(f.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout: %w", err)
		}
		if d > 0 {
			f.timeout = d
		}
	}
	return nil
}

// RunTimeout bounds the whole batch run
func (f *File) RunTimeout() time.Duration {
	return f.timeout
}

// Request converts the file into a batch creation request
func (f *File) Request() *model.CreateBatchRequest {
	req := &model.CreateBatchRequest{
		ApplyDate:    f.ApplyDate,
		ApplyContent: f.ApplyContent,
		Targets:      make([]model.BatchTarget, 0, len(f.Targets)),
	}
	if f.Content != nil {
		req.Content = &model.PolicyContent{
			Category:    f.Content.Category,
			DirectInput: f.Content.DirectInput,
			Fields:      f.Content.Fields,
			FreeText:    f.Content.FreeText,
		}
	}
	for _, t := range f.Targets {
		req.Targets = append(req.Targets, model.BatchTarget{TargetID: t.ID, AccessGroupIDs: t.AccessGroups})
	}
	return req
}

// Load reads and validates a batch file
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and validates a batch definition
func Parse(data []byte) (*File, error) {
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse batch file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}
