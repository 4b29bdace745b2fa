// Package halt reads, writes and evaluates the persisted halt file that tells
// the run loop to stop launching new attempts.
package halt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/scrun/pkg/types"
	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// Load reads the halt file. A missing file yields an empty condition.
func Load(path string) (*types.HaltCondition, error) {
	cond := &types.HaltCondition{}
	if path == "" {
		return cond, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cond, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read halt file: %w", err)
	}

	if err := yaml.Unmarshal(data, cond); err != nil {
		return nil, fmt.Errorf("failed to parse halt file %s: %w", path, err)
	}
	return cond, nil
}

// Save atomically replaces the halt file with cond
func Save(path string, cond *types.HaltCondition) error {
	if path == "" {
		return errors.New("no halt file configured")
	}
	data, err := yaml.Marshal(cond)
	if err != nil {
		return fmt.Errorf("failed to encode halt condition: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create halt file directory: %w", err)
	}
	return renameio.WriteFile(path, data, 0o644)
}

// Remove deletes the halt file; a missing file is not an error
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Update loads the halt file, applies fn and saves the result
func Update(path string, fn func(*types.HaltCondition)) (*types.HaltCondition, error) {
	cond, err := Load(path)
	if err != nil {
		return nil, err
	}
	fn(cond)
	if err := Save(path, cond); err != nil {
		return nil, err
	}
	return cond, nil
}

// Evaluate decides whether cond says to halt at now. endTime is the
// allocation end in unix seconds; values <= 0 mean unknown or unlimited.
// The returned reason is non-empty exactly when halt is true.
func Evaluate(cond *types.HaltCondition, now time.Time, endTime int64) (reason string, halt bool) {
	if cond == nil {
		return "", false
	}

	if cond.ExitReason != "" {
		return "Reason=" + cond.ExitReason, true
	}

	if cond.CheckpointsLeft != nil && *cond.CheckpointsLeft <= 0 {
		return "CheckpointsLeft=0", true
	}

	if cond.ExitAfter != nil && !now.Before(*cond.ExitAfter) {
		return "ExitAfter=" + cond.ExitAfter.Format(time.RFC3339), true
	}

	margin := time.Duration(cond.HaltSeconds) * time.Second
	if cond.ExitBefore != nil && !now.Add(margin).Before(*cond.ExitBefore) {
		return "ExitBefore=" + cond.ExitBefore.Format(time.RFC3339), true
	}

	if cond.HaltSeconds > 0 && endTime > 0 {
		if now.Add(margin).Unix() >= endTime {
			return fmt.Sprintf("HaltSeconds=%d", cond.HaltSeconds), true
		}
	}

	return "", false
}
