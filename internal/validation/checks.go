package validation

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
)

// CheckFileExists verifies a file or directory exists at the given path.
func CheckFileExists(path string) error {
	if path == "" {
		return fmt.Errorf("path is required")
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("path %s does not exist", path)
		}
		return err
	}

	return nil
}

// CheckNonEmpty verifies path is a regular file with at least one byte.
func CheckNonEmpty(path string) error {
	if err := CheckFileExists(path); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("path %s is a directory", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("file %s is empty", path)
	}
	return nil
}

// CheckPathContains verifies that file contains the provided text or pattern.
func CheckPathContains(path, text string) error {
	if path == "" {
		return fmt.Errorf("file path is required")
	}
	if text == "" {
		return fmt.Errorf("text is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	pattern, err := regexp.Compile(text)
	if err != nil {
		return err
	}

	if !pattern.Match(data) {
		return fmt.Errorf("pattern %q not found in %s", text, path)
	}

	return nil
}
