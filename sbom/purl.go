/*
 * sbom/purl.go
 *
 * ResolvePurl derives a package URL from an ImageRef, per the
 * "<registry/path>@sha256:<digest>" convention container runtimes report.
 */

package sbom

import "strings"

// ResolvePurl parses imageRef as "base@digest", takes the last path segment
// of base as the package name, and requires digest to carry a sha256 prefix.
func ResolvePurl(imageRef string) (string, error) {
	at := strings.LastIndexByte(imageRef, '@')
	if at < 0 {
		return "", NewResolutionError(imageRef, "unable to create purl: no digest separator")
	}

	base, digest := imageRef[:at], imageRef[at+1:]
	if !strings.HasPrefix(digest, "sha256:") {
		return "", NewResolutionError(imageRef, "unable to create purl: digest missing sha256 prefix")
	}

	name := base
	if slash := strings.LastIndexByte(base, '/'); slash >= 0 {
		name = base[slash+1:]
	}

	return "pkg:oci/" + name + "@" + digest, nil
}
