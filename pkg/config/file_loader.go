/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var errTrailingConfigData = errors.New("unexpected data after the config object")

// JSONFileLoader reads a proxyctl config file. The file holds a single JSON
// object whose keys must all be known; a blank file leaves dst unchanged.
type JSONFileLoader struct{}

// Load implements ConfigLoader. A leading "~/" in path is resolved against the
// user's home directory.
func (JSONFileLoader) Load(_ context.Context, path string, dst interface{}) error {
	resolved, err := expandHome(path)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", resolved, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decoding config %s: %w", resolved, err)
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w in %s", errTrailingConfigData, resolved)
	}

	return nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}

	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
