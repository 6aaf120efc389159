package settings

import (
	"errors"
	"strings"
)

const (
	// WebpackSettings holds the user editable bundling settings
	WebpackSettings = "webpack.settings"
	// OutputPathKey is the output directory setting
	OutputPathKey = "output_path"
)

// ErrAbsoluteOutputPath is returned for output paths starting with "/"
var ErrAbsoluteOutputPath = errors.New("Output path cannot be absolute. Please use either a scheme (eg. public://) or a path relative to the site root.")

// ValidateOutputPath checks an output path entered by a user
func ValidateOutputPath(value string) error {
	if strings.HasPrefix(value, "/") {
		return ErrAbsoluteOutputPath
	}
	if strings.TrimSpace(value) == "" {
		return errors.New("output path cannot be empty")
	}
	return nil
}

// OutputPath returns the stored output path, or fallback when none is set
func OutputPath(store *Store, fallback string) (string, error) {
	obj, err := store.Get(WebpackSettings)
	if err != nil {
		return "", err
	}
	if v := obj.String(OutputPathKey); v != "" {
		return v, nil
	}
	return fallback, nil
}

// SetOutputPath validates and saves the output path
func SetOutputPath(store *Store, value string) error {
	if err := ValidateOutputPath(value); err != nil {
		return err
	}
	obj, err := store.Editable(WebpackSettings)
	if err != nil {
		return err
	}
	if err := obj.Set(OutputPathKey, value); err != nil {
		return err
	}
	return obj.Save()
}
