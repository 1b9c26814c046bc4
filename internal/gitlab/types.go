package gitlab

import "time"

// Group is a GitLab group as returned by GET /groups
type Group struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	FullPath string `json:"full_path"`
}

// Project is the subset of a GitLab project the registry needs
type Project struct {
	ID                int64     `json:"id"`
	PathWithNamespace string    `json:"path_with_namespace"`
	LastActivityAt    time.Time `json:"last_activity_at"`
	DefaultBranch     string    `json:"default_branch"`
	SSHURLToRepo      string    `json:"ssh_url_to_repo"`
	HTTPURLToRepo     string    `json:"http_url_to_repo"`
	Topics            []string  `json:"topics,omitempty"`
}

// Commit identifies a commit
type Commit struct {
	ID string `json:"id"`
}

// Ref is a branch or tag. GitLab returns both with the same shape.
type Ref struct {
	Name   string `json:"name"`
	Commit Commit `json:"commit"`
}

// fileResponse is the body of GET /projects/:id/repository/files/:path
type fileResponse struct {
	FileName string `json:"file_name"`
	FilePath string `json:"file_path"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}
