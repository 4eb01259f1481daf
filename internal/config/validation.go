package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"

	batcherrors "github.com/alexisbeaulieu97/batchrun/pkg/errors"
)

// ValidateConfig performs schema and cross-field validation, reporting every
// problem found rather than only the first.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return batcherrors.NewValidationError("config", "configuration is nil", nil)
	}

	var result *multierror.Error
	if err := validatorInstance().Struct(cfg); err != nil {
		result = multierror.Append(result, convertValidationErrors(err)...)
	}

	loc := cfg.Environment.Locality
	if loc.Type == "remote" && loc.Password == "" && loc.KeyFile == "" {
		result = multierror.Append(result, batcherrors.NewValidationError("environment.locality", "remote locality needs a password or key_file", nil))
	}

	seen := make(map[string]int, len(cfg.Stages))
	for i, stage := range cfg.Stages {
		if first, dup := seen[stage.Name]; dup && stage.Name != "" {
			result = multierror.Append(result, batcherrors.NewValidationError(fieldForStage(i, "name"),
				fmt.Sprintf("duplicate stage name %q (first used by stages[%d])", stage.Name, first), nil))
		} else {
			seen[stage.Name] = i
		}
		for _, err := range validateStage(cfg, i, stage) {
			result = multierror.Append(result, err)
		}
	}

	for i, check := range cfg.Outputs {
		if check.Type == CheckPathContains && check.Text != "" {
			if _, err := regexp.Compile(check.Text); err != nil {
				result = multierror.Append(result, batcherrors.NewValidationError(fmt.Sprintf("outputs[%d].text", i), "invalid pattern", err))
			}
		}
	}

	return result.ErrorOrNil()
}

func validateStage(cfg *Config, index int, stage Stage) []error {
	var errs []error

	if stage.Command != "" {
		if _, err := template.New(stage.Name).Parse(stage.Command); err != nil {
			errs = append(errs, batcherrors.NewValidationError(fieldForStage(index, "command"), "invalid command template", err))
		}
	}

	params := make(map[string]struct{}, len(stage.Parameters))
	for j, param := range stage.Parameters {
		field := fmt.Sprintf("%s[%d]", fieldForStage(index, "parameters"), j)
		if _, dup := params[param.Name]; dup {
			errs = append(errs, batcherrors.NewValidationError(field, fmt.Sprintf("duplicate parameter %q", param.Name), nil))
		}
		params[param.Name] = struct{}{}

		if param.Pattern != "" {
			if _, err := regexp.Compile(param.Pattern); err != nil {
				errs = append(errs, batcherrors.NewValidationError(field+".pattern", "invalid pattern", err))
			}
		}
		if param.Flag && param.Default != "" && param.Default != "true" && param.Default != "false" {
			errs = append(errs, batcherrors.NewValidationError(field+".default", "flag default must be true or false", nil))
		}
	}

	if stage.JobArray != nil && cfg.Environment.Scheduler == nil {
		errs = append(errs, batcherrors.NewValidationError(fieldForStage(index, "job_array"), "job arrays require a scheduler", nil))
	}
	return errs
}

// convertValidationErrors normalizes validator errors into batchrun validation errors.
func convertValidationErrors(err error) []error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return []error{batcherrors.NewValidationError("config", err.Error(), err)}
	}

	out := make([]error, 0, len(ves))
	for _, ve := range ves {
		field := yamlishFieldName(ve)
		msg := fmt.Sprintf("%s failed validation for tag '%s'", field, ve.Tag())
		out = append(out, batcherrors.NewValidationError(field, msg, ve))
	}
	return out
}

func yamlishFieldName(fe validator.FieldError) string {
	ns := fe.StructNamespace()
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	var lowered []string
	for _, part := range parts {
		lowered = append(lowered, strings.ToLower(part))
	}
	return strings.Join(lowered, ".")
}

func fieldForStage(index int, field string) string {
	return fmt.Sprintf("stages[%d].%s", index, field)
}
