package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// policyKeys are the top-level scalar keys of .bamsync/policy.yaml. Everything
// else `config set` touches goes to the global config file, where viper
// resolves flat dotted keys.
var policyKeys = map[string]bool{
	"update_mode":      true,
	"safe_mode":        true,
	"orphan_detection": true,
}

// IsPolicyKey reports whether key is stored in the project policy file rather
// than the global config.
func IsPolicyKey(key string) bool {
	return policyKeys[key]
}

// SetValue writes a configuration value to the file that owns the key:
// project policy keys to the nearest .bamsync/policy.yaml, everything else to
// the global config file. Missing files are created. Returns the path written.
func SetValue(key, value string) (string, error) {
	path, err := targetFile(key)
	if err != nil {
		return "", err
	}

	content := ""
	if data, err := os.ReadFile(path); err == nil { // #nosec G304 -- path is one of our two config files
		content = string(data)
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	updated := updateYamlKey(content, key, value)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// GetValue reads the effective value for key: policy keys through the
// resolved policy, globals through viper.
func GetValue(key string) (string, error) {
	if !IsPolicyKey(key) {
		return GetString(key), nil
	}
	p, _, err := LoadPolicy("")
	if err != nil {
		return "", err
	}
	switch key {
	case "update_mode":
		return string(p.UpdateMode), nil
	case "safe_mode":
		return fmt.Sprintf("%t", p.SafeMode), nil
	case "orphan_detection":
		return fmt.Sprintf("%t", p.OrphanDetection), nil
	}
	return "", fmt.Errorf("unknown policy key %q", key)
}

func targetFile(key string) (string, error) {
	if !IsPolicyKey(key) {
		return GlobalFile(), nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to resolve working directory: %w", err)
	}
	if path, ok := findPolicyFile(cwd); ok {
		return path, nil
	}
	// No policy file yet: place one in the nearest project dir, or start a
	// project dir here.
	if dir, ok := FindProjectDir(cwd); ok {
		return filepath.Join(dir, PolicyFileName), nil
	}
	return filepath.Join(cwd, ProjectDirName, PolicyFileName), nil
}

// updateYamlKey updates key in yaml content, uncommenting and replacing an
// existing line (commented or not) in place, or appending when absent.
func updateYamlKey(content, key, value string) string {
	newLine := fmt.Sprintf("%s: %s", key, formatYamlValue(value))
	keyPattern := regexp.MustCompile(`^(\s*)(#\s*)?` + regexp.QuoteMeta(key) + `\s*:`)

	found := false
	var result []string
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if !found && keyPattern.MatchString(line) {
			indent := keyPattern.FindStringSubmatch(line)[1]
			result = append(result, indent+newLine)
			found = true
			continue
		}
		result = append(result, line)
	}

	if !found {
		if len(result) > 0 && result[len(result)-1] != "" {
			result = append(result, "")
		}
		result = append(result, newLine)
	}
	return strings.Join(result, "\n") + "\n"
}

// formatYamlValue quotes values that yaml would otherwise mangle.
func formatYamlValue(value string) string {
	lower := strings.ToLower(value)
	if lower == "true" || lower == "false" {
		return lower
	}
	if isNumeric(value) || isDuration(value) {
		return value
	}
	if needsQuoting(value) {
		return fmt.Sprintf("%q", value)
	}
	return value
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		if c == '-' && i == 0 {
			continue
		}
		if c == '.' {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isDuration(s string) bool {
	if len(s) < 2 {
		return false
	}
	suffix := s[len(s)-1]
	if suffix != 's' && suffix != 'm' && suffix != 'h' {
		return false
	}
	return isNumeric(s[:len(s)-1])
}

func needsQuoting(s string) bool {
	if strings.TrimSpace(s) != s {
		return true
	}
	return strings.ContainsAny(s, ":#[]{},&*!|>'\"%@`")
}
