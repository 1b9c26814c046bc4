package composer

import "strings"

const (
	// MethodSSH selects ssh_url_to_repo as the package source URL
	MethodSSH = "ssh"
	// MethodHTTP selects http_url_to_repo as the package source URL
	MethodHTTP = "http"
)

// Policy carries the registry options that change how manifests are accepted
// and how source URLs are built
type Policy struct {
	// Method is the checkout method, MethodSSH or MethodHTTP
	Method string
	// Port rewrites ssh URLs to the explicit ssh://host:port/path form when set
	Port string
	// HideProjects rejects manifests declaring type "project"
	HideProjects bool
	// AllowNameMismatch accepts manifests whose name differs from the
	// repository path and names the package after the default branch manifest
	AllowNameMismatch bool
}

// NormalizeMethod returns the checkout method to use for the configured value.
// An empty value means MethodSSH. Unknown values fall back to MethodSSH and ok
// is false.
func NormalizeMethod(method string) (normalized string, ok bool) {
	switch strings.TrimSpace(method) {
	case MethodSSH, "":
		return MethodSSH, true
	case MethodHTTP:
		return MethodHTTP, true
	default:
		return MethodSSH, false
	}
}

// Normalized returns a copy of p with Method normalized
func (p Policy) Normalized() Policy {
	p.Method, _ = NormalizeMethod(p.Method)
	return p
}
