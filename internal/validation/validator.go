// Package validation verifies the files a finished pipeline should have produced.
package validation

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"github.com/alexisbeaulieu97/batchrun/internal/config"
	batcherrors "github.com/alexisbeaulieu97/batchrun/pkg/errors"
)

// Result captures the outcome of one output check.
type Result struct {
	Check   config.OutputCheck
	Passed  bool
	Message string
	Error   error
}

// RunChecks evaluates every check on this machine, resolving relative paths
// against baseDir. All checks run; failures are aggregated.
func RunChecks(ctx context.Context, baseDir string, checks []config.OutputCheck) ([]Result, error) {
	results := make([]Result, 0, len(checks))
	var failed *multierror.Error

	for _, check := range checks {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result := Result{Check: check}
		path := resolve(baseDir, check.Path)

		var err error
		switch check.Type {
		case config.CheckFileExists:
			err = CheckFileExists(path)
		case config.CheckNonEmpty:
			err = CheckNonEmpty(path)
		case config.CheckPathContains:
			err = CheckPathContains(path, check.Text)
		default:
			err = batcherrors.NewValidationError("outputs.type", fmt.Sprintf("unknown check type %q", check.Type), nil)
		}

		if err != nil {
			result.Message = err.Error()
			result.Error = err
			failed = multierror.Append(failed, err)
		} else {
			result.Passed = true
			result.Message = fmt.Sprintf("%s %s", check.Type, check.Path)
		}

		results = append(results, result)
	}

	if err := failed.ErrorOrNil(); err != nil {
		return results, fmt.Errorf("output checks failed: %w", err)
	}
	return results, nil
}

func resolve(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}
