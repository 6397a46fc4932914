package core

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// VarContext holds resolved input values from the varfile. Values are
// strings, numbers, booleans or lists as decoded from YAML.
type VarContext map[string]any

// varRegex is a package-level compiled regular expression for matching {{ varName }} placeholders.
var varRegex = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9\._-]+)\s*\}\}`)

var envRegex = regexp.MustCompile(`^\s*\{\{\s*env\.([A-Za-z0-9_]+)\s*}}\s*$`)

// ResolveVarfile loads a YAML varfile (e.g. agvars.yml), parses it, and resolves {{ env.NAME }} values.
func ResolveVarfile(path string) (VarContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading varfile %q: %w", path, err)
	}

	var rawVars map[string]any
	if err := yaml.Unmarshal(data, &rawVars); err != nil {
		return nil, fmt.Errorf("parsing varfile YAML from %q: %w", path, err)
	}

	resolvedCtx := make(VarContext, len(rawVars))
	for key, val := range rawVars {
		resolvedCtx[key] = resolveEnvValue(key, val)
	}
	return resolvedCtx, nil
}

func resolveEnvValue(key string, val any) any {
	str, ok := val.(string)
	if !ok || !envRegex.MatchString(str) {
		return val
	}
	envKey := envRegex.FindStringSubmatch(str)[1]
	envVal, exists := os.LookupEnv(envKey)
	if !exists {
		log.Warn().Msgf("Environment variable %q not found for varfile key %q", envKey, key)
	}
	return envVal
}

// ApplyInputDefaults fills in declared defaults for inputs the varfile does
// not set and returns the names that were defaulted.
func ApplyInputDefaults(wf *Workflow, varCtx VarContext) []string {
	var defaulted []string
	for _, input := range wf.Inputs {
		if _, exists := varCtx[input.Name]; !exists && input.Default != "" {
			varCtx[input.Name] = input.Default
			defaulted = append(defaulted, input.Name)
		}
	}
	return defaulted
}

// ResolveStringWithContext replaces {{ name }} placeholders with values from
// globals. Dotted names traverse nested maps; a trailing .json renders the
// value as JSON.
func ResolveStringWithContext(input string, globals VarContext) (string, error) {
	var firstErr error
	output := varRegex.ReplaceAllStringFunc(input, func(match string) string {
		if firstErr != nil {
			return match // Stop processing if an error has occurred
		}

		key := varRegex.FindStringSubmatch(match)[1]
		val, found := FindValueInContext(key, globals)

		if !found {
			firstErr = fmt.Errorf("undefined variable: %s", key)
			return match
		}
		return fmt.Sprintf("%v", val)
	})

	if firstErr != nil {
		return "", firstErr
	}
	return output, nil
}

// FindValueInContext orchestrates the lookup for a variable.
func FindValueInContext(key string, globals VarContext) (any, bool) {
	wantsJSON := strings.HasSuffix(key, ".json")
	if wantsJSON {
		key = strings.TrimSuffix(key, ".json")
	}

	if strings.HasPrefix(key, "env.") {
		return os.LookupEnv(strings.TrimPrefix(key, "env."))
	}

	parts := strings.Split(key, ".")
	root, ok := globals[parts[0]]
	if !ok {
		return nil, false
	}
	value, found := GetNestedValue(root, parts[1:])
	if !found {
		return nil, false
	}

	if wantsJSON {
		jsonBytes, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprintf("{\"error\": \"failed to marshal to json: %v\"}", err), true
		}
		return string(jsonBytes), true
	}

	return value, true
}

// GetNestedValue traverses a data structure (map or string) using a path slice.
func GetNestedValue(data any, path []string) (any, bool) {
	if len(path) == 0 {
		return data, true
	}
	if data == nil {
		return nil, false
	}

	current := data
	for _, keyInPath := range path {
		switch typedCurrent := current.(type) {
		case map[string]any:
			if val, exists := typedCurrent[keyInPath]; exists {
				current = val
			} else {
				return nil, false
			}
		case map[string]string:
			if val, exists := typedCurrent[keyInPath]; exists {
				current = val
			} else {
				return nil, false
			}
		default:
			return nil, false
		}
	}
	return current, true
}

// ResolveProviderVariables resolves {{ }} placeholders in a provider's
// credential and endpoint fields against the varfile.
func ResolveProviderVariables(p *ProviderConfig, globals VarContext) (*ProviderConfig, error) {
	resolved := *p
	resolved.AllowedRecipients = append([]string(nil), p.AllowedRecipients...)

	fields := []struct {
		name string
		val  *string
	}{
		{"api_key", &resolved.APIKey},
		{"base_url", &resolved.BaseURL},
		{"ai_base_url", &resolved.AIBaseURL},
		{"token_file", &resolved.TokenFile},
		{"client_id", &resolved.ClientID},
		{"client_secret", &resolved.ClientSecret},
	}
	for _, f := range fields {
		v, err := ResolveStringWithContext(*f.val, globals)
		if err != nil {
			return nil, fmt.Errorf("resolving '%s' for provider %q: %w", f.name, p.Name, err)
		}
		*f.val = v
	}

	for i, r := range resolved.AllowedRecipients {
		v, err := ResolveStringWithContext(r, globals)
		if err != nil {
			return nil, fmt.Errorf("resolving 'allowed_recipients[%d]' for provider %q: %w", i, p.Name, err)
		}
		resolved.AllowedRecipients[i] = v
	}

	return &resolved, nil
}
