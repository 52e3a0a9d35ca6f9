package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

var keyEnvNames = []string{"OPENAI_API_KEY", "OPENAI_KEY", "OPENAI_API_KEY_ADMIN", "OPENAI_API_KEY_USER"}

// defaultKeyFiles are checked in order when no key is set in the
// environment or the config file.
var defaultKeyFiles = []string{
	"./chat-api.env",
	"./openai.key",
	"./.env",
	"./config.json",
	"~/.openai/api_key",
	"~/.config/private-chat/openai.key",
	"~/.config/openai.key",
}

var jsonKeyNames = []string{"OPENAI_API_KEY", "openai_api_key", "api_key", "OPENAI_KEY"}

func discoverKeyEnv() (key, source string) {
	for _, name := range keyEnvNames {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v, "env:" + name
		}
	}
	return "", ""
}

func discoverKeyFiles(paths []string) (key, source string) {
	for _, p := range paths {
		path := expandHome(p)
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if key := parseKeyContent(path, strings.TrimSpace(string(raw))); key != "" {
			return key, "file:" + p
		}
	}
	return "", ""
}

// parseKeyContent accepts a JSON object, dotenv lines or a bare sk- key.
func parseKeyContent(path, content string) string {
	if content == "" {
		return ""
	}
	if strings.HasSuffix(path, ".json") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(content), &obj); err == nil {
			for _, k := range jsonKeyNames {
				if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
					return strings.TrimSpace(s)
				}
			}
		}
	}
	if strings.Contains(content, "=") {
		for _, line := range strings.Split(content, "\n") {
			k, v, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			k = strings.TrimPrefix(strings.TrimSpace(k), "export ")
			v = strings.Trim(strings.TrimSpace(v), `"'`)
			if (k == "OPENAI_API_KEY" || k == "OPENAI_KEY") && v != "" {
				return v
			}
		}
	}
	if strings.HasPrefix(content, "sk-") && len(content) > 20 {
		return content
	}
	return ""
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
