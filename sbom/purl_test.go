package sbom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePurl(t *testing.T) {
	purl, err := ResolvePurl("registry.io/foo/bar@sha256:deadbeef")
	require.NoError(t, err)
	assert.Equal(t, "pkg:oci/bar@sha256:deadbeef", purl)
}

func TestResolvePurlNoDigestSeparator(t *testing.T) {
	_, err := ResolvePurl("registry.io/foo/bar")
	require.Error(t, err)
	assert.True(t, IsResolutionError(err))
}

func TestResolvePurlNonSha256Digest(t *testing.T) {
	_, err := ResolvePurl("registry.io/foo/bar@sha512:deadbeef")
	require.Error(t, err)
	assert.True(t, IsResolutionError(err))
}

func TestResolvePurlNameWithoutSlash(t *testing.T) {
	purl, err := ResolvePurl("bar@sha256:deadbeef")
	require.NoError(t, err)
	assert.Equal(t, "pkg:oci/bar@sha256:deadbeef", purl)
}
