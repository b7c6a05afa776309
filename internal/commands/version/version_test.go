// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package version

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/future-agi/traceAI-sub007/internal/cli"
)

func TestVersionOutput(t *testing.T) {
	cli.SetVersion("1.0.0", "test123", "2026-01-02")
	t.Cleanup(func() { cli.SetVersion("dev", "unknown", "unknown") })

	cmd := NewVersionCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "traceai version 1.0.0")
	assert.Contains(t, buf.String(), "test123")
}

func TestVersionJSONOutput(t *testing.T) {
	cli.SetVersion("1.0.0", "test123", "2026-01-02")
	t.Cleanup(func() { cli.SetVersion("dev", "unknown", "unknown") })

	root := cli.NewRootCommand()
	root.AddCommand(NewVersionCommand())

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"version", "--json"})
	// Registering the flags again restores their defaults.
	t.Cleanup(func() { cli.NewRootCommand() })

	require.NoError(t, root.Execute())

	var info VersionInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &info))
	assert.Equal(t, VersionInfo{Version: "1.0.0", Commit: "test123", BuildDate: "2026-01-02"}, info)
}
