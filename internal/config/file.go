package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// WriteDefault writes a commented default config to path, creating
// parent directories and refusing to overwrite an existing file. The
// file is 0600: `caddie remote login` stores the auth token in it.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to check %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := encodeYAML(defaultDocument(filepath.Join(filepath.Dir(path), "caddie.db")))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// SaveAuthToken stores token under remote.auth_token in the config
// file at path, creating the file from the default template when it
// does not exist. Comments and unrelated keys survive the rewrite.
func SaveAuthToken(path, token string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := WriteDefault(path); err != nil {
			return err
		}
	} else if err != nil {
		return fmt.Errorf("failed to check %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}
	root := documentRoot(&doc)
	if root == nil {
		return fmt.Errorf("config %s is not a YAML mapping", path)
	}

	setChild(childMapping(root, "remote"), "auth_token", token)

	out, err := encodeYAML(&doc)
	if err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, out, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

func encodeYAML(doc *yaml.Node) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// defaultDocument builds the commented template `caddie config init`
// writes. Values mirror the component defaults; duration keys are
// written out so the file shows what the daemon actually does.
func defaultDocument(storePath string) *yaml.Node {
	root := mapping(
		key("store", ""), mapping(
			key("path", "Local SQLite database. The daemon keeps its lock, journal,\nand rotated log beside it."), scalar(storePath),
		),
		key("remote", "Remote libSQL store. Leave the url empty to stay fully local."), mapping(
			key("url", ""), quoted(""),
			key("auth_token", "Filled in by `caddie remote login`."), quoted(""),
		),
		key("relay", "Websocket relay carrying other devices' changes."), mapping(
			key("url", ""), quoted(""),
		),
		key("catalog", "Directory of course TOML files, imported and watched by the daemon."), mapping(
			key("dir", ""), quoted(""),
		),
		key("daemon", ""), mapping(
			key("drain_interval", ""), scalar("30s"),
			key("retry_sweep_interval", ""), scalar("5m"),
			key("status_interval", ""), scalar("15s"),
			key("catalog_debounce", ""), scalar("500ms"),
			key("log_file", "Rotated daemon log. Empty logs to stderr."), quoted(""),
		),
		key("dashboard", ""), mapping(
			key("port", ""), scalar("8080"),
		),
		key("recap", "Model for `caddie recap`. The ANTHROPIC_API_KEY environment\nvariable supplies the key."), mapping(
			key("model", ""), quoted(""),
		),
	)
	root.HeadComment = "caddie configuration. CADDIE_* environment variables and command\nflags override these values."
	return &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}
}

func key(name, comment string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: name, HeadComment: comment}
}

func scalar(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: value}
}

func quoted(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: value, Style: yaml.DoubleQuotedStyle}
}

func mapping(pairs ...*yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Content: pairs}
}

// documentRoot returns the top-level mapping of a parsed config,
// synthesizing one for an empty file.
func documentRoot(doc *yaml.Node) *yaml.Node {
	if doc.Kind == 0 {
		root := &yaml.Node{Kind: yaml.MappingNode}
		doc.Kind = yaml.DocumentNode
		doc.Content = []*yaml.Node{root}
		return root
	}
	if doc.Kind == yaml.DocumentNode && len(doc.Content) == 1 && doc.Content[0].Kind == yaml.MappingNode {
		return doc.Content[0]
	}
	return nil
}

// childMapping returns the mapping under name, creating or replacing
// the value so a mapping is always returned.
func childMapping(parent *yaml.Node, name string) *yaml.Node {
	if v := findValue(parent, name); v != nil {
		if v.Kind != yaml.MappingNode {
			*v = yaml.Node{Kind: yaml.MappingNode}
		}
		return v
	}
	v := &yaml.Node{Kind: yaml.MappingNode}
	parent.Content = append(parent.Content, scalar(name), v)
	return v
}

func findValue(mapping *yaml.Node, name string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == name {
			return mapping.Content[i+1]
		}
	}
	return nil
}

// setChild sets name to a string value, keeping the existing node's
// style and comments when the key is already present.
func setChild(mapping *yaml.Node, name, value string) {
	if v := findValue(mapping, name); v != nil {
		v.SetString(value)
		return
	}
	mapping.Content = append(mapping.Content, scalar(name), quoted(value))
}
