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

package export

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTLSConfig_Disabled(t *testing.T) {
	cfg, err := BuildTLSConfig(TLSConfigInput{})
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestBuildTLSConfig_SystemPool(t *testing.T) {
	cfg, err := BuildTLSConfig(TLSConfigInput{Enabled: true, VerifyCertificate: true, ServerName: "collector.internal"})
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.NotEmpty(t, cfg.CipherSuites)
	assert.NotNil(t, cfg.RootCAs)
	assert.Equal(t, "collector.internal", cfg.ServerName)
	assert.False(t, cfg.InsecureSkipVerify)
}

func TestBuildTLSConfig_SkipVerify(t *testing.T) {
	cfg, err := BuildTLSConfig(TLSConfigInput{Enabled: true})
	require.NoError(t, err)
	assert.True(t, cfg.InsecureSkipVerify)
	assert.NoError(t, ValidateTLSConfig(cfg))
}

func TestBuildTLSConfig_BadCA(t *testing.T) {
	_, err := BuildTLSConfig(TLSConfigInput{Enabled: true, CACertPath: filepath.Join(t.TempDir(), "missing.pem")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read CA certificate")

	path := filepath.Join(t.TempDir(), "garbage.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a certificate"), 0o600))
	_, err = BuildTLSConfig(TLSConfigInput{Enabled: true, CACertPath: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse CA certificate")
}

func TestValidateTLSConfig(t *testing.T) {
	assert.NoError(t, ValidateTLSConfig(&tls.Config{MinVersion: tls.VersionTLS13}))

	err := ValidateTLSConfig(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil")

	err = ValidateTLSConfig(&tls.Config{MinVersion: tls.VersionTLS10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minimum TLS version")
}
