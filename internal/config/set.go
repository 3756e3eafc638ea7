package config

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
)

// Set writes key=value into the JSONC file at path, creating it if needed.
// Comments and the order of other keys are preserved. An empty value
// removes the key.
func Set(path, key, value string) error {
	if !slices.Contains(Keys, key) {
		return fmt.Errorf("%w: %s (valid: %v)", ErrUnknownKey, key, Keys)
	}

	if key == "autosave_delay" && value != "" {
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return fmt.Errorf("%w: %q", ErrAutosaveDelay, value)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("%w: %s: %w", ErrConfigFileRead, path, err)
		}

		data = []byte("{}")
	}

	root, err := hujson.Parse(data)
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	obj, ok := root.Value.(*hujson.Object)
	if !ok {
		return fmt.Errorf("%w %s: top-level value is not an object", ErrConfigInvalid, path)
	}

	idx := slices.IndexFunc(obj.Members, func(m hujson.ObjectMember) bool {
		name, isStr := m.Name.Value.(hujson.Literal)

		return isStr && name.String() == key
	})

	switch {
	case value == "" && idx >= 0:
		obj.Members = slices.Delete(obj.Members, idx, idx+1)
	case value == "":
	case idx >= 0:
		obj.Members[idx].Value.Value = hujson.String(value)
	default:
		obj.Members = append(obj.Members, hujson.ObjectMember{
			Name:  hujson.Value{Value: hujson.String(key)},
			Value: hujson.Value{Value: hujson.String(value)},
		})
	}

	root.Format()

	var buf bytes.Buffer
	buf.Write(root.Pack())

	if !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
		buf.WriteByte('\n')
	}

	// Reject a result the loader would refuse.
	if _, err := parse(buf.Bytes()); err != nil {
		return fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	err = atomic.WriteFile(path, &buf)
	if err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}

	return nil
}
