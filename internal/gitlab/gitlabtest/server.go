// Package gitlabtest provides an in-memory GitLab API v4 server for tests
package gitlabtest

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/gitlab-composer-registry/internal/gitlab"
)

// Token is the PRIVATE-TOKEN the server accepts
const Token = "test-token"

// Server is a fake GitLab serving groups, projects, refs and files from memory
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	groups        []gitlab.Group
	groupProjects map[int64][]int64
	projects      []gitlab.Project
	branches      map[int64][]gitlab.Ref
	tags          map[int64][]gitlab.Ref
	commits       map[int64][]gitlab.Commit
	files         map[fileKey][]byte
	failures      map[int64]int
	hits          map[string]int
	fileFetches   int
}

type fileKey struct {
	projectID int64
	path      string
	ref       string
}

// NewServer starts a fake GitLab that is closed when the test ends
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := newServer()
	t.Cleanup(s.Close)
	return s
}

// Start starts a fake GitLab the caller must Close
func Start() *Server {
	return newServer()
}

func newServer() *Server {
	s := &Server{
		groupProjects: map[int64][]int64{},
		branches:      map[int64][]gitlab.Ref{},
		tags:          map[int64][]gitlab.Ref{},
		commits:       map[int64][]gitlab.Commit{},
		files:         map[fileKey][]byte{},
		failures:      map[int64]int{},
		hits:          map[string]int{},
	}
	s.Server = httptest.NewServer(s.router())
	return s
}

// Endpoint returns the base URL to configure a client with
func (s *Server) Endpoint() string {
	return s.URL
}

// AddGroup registers a group
func (s *Server) AddGroup(id int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = append(s.groups, gitlab.Group{ID: id, Name: name, Path: name, FullPath: name})
}

// AddProject registers a project, optionally as a member of groups
func (s *Server) AddProject(p gitlab.Project, groupIDs ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects = append(s.projects, p)
	for _, g := range groupIDs {
		s.groupProjects[g] = append(s.groupProjects[g], p.ID)
	}
}

// NewProject returns a project with conventional URLs for path
func NewProject(id int64, path string, activity time.Time) gitlab.Project {
	return gitlab.Project{
		ID:                id,
		PathWithNamespace: path,
		LastActivityAt:    activity,
		DefaultBranch:     "main",
		SSHURLToRepo:      "git@gitlab.example.com:" + path + ".git",
		HTTPURLToRepo:     "https://gitlab.example.com/" + path + ".git",
	}
}

// SetActivity updates a project's last_activity_at
func (s *Server) SetActivity(projectID int64, activity time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.projects {
		if s.projects[i].ID == projectID {
			s.projects[i].LastActivityAt = activity
		}
	}
}

// AddBranch registers a branch and, when manifest is non-nil, its composer.json
func (s *Server) AddBranch(projectID int64, name, commitID string, manifest []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.branches[projectID] = append(s.branches[projectID], ref(name, commitID))
	s.addCommitLocked(projectID, commitID, manifest)
}

// AddTag registers a tag and, when manifest is non-nil, its composer.json
func (s *Server) AddTag(projectID int64, name, commitID string, manifest []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[projectID] = append(s.tags[projectID], ref(name, commitID))
	s.addCommitLocked(projectID, commitID, manifest)
}

// SetFile stores a file at a commit
func (s *Server) SetFile(projectID int64, path, commitID string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[fileKey{projectID, path, commitID}] = content
}

// FailProject makes every request under /projects/{id}/ answer with status.
// A zero status clears the failure.
func (s *Server) FailProject(projectID int64, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, projectID)
		return
	}
	s.failures[projectID] = status
}

// Hits returns how often a route pattern was requested, e.g. "/projects/{id}/repository/tags"
func (s *Server) Hits(pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[pattern]
}

// FileFetches returns the number of file reads served, found or not
func (s *Server) FileFetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileFetches
}

// ResetHits clears all request counters
func (s *Server) ResetHits() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits = map[string]int{}
	s.fileFetches = 0
}

func (s *Server) addCommitLocked(projectID int64, commitID string, manifest []byte) {
	s.commits[projectID] = append(s.commits[projectID], gitlab.Commit{ID: commitID})
	if manifest != nil {
		s.files[fileKey{projectID, "composer.json", commitID}] = manifest
	}
}

func ref(name, commitID string) gitlab.Ref {
	return gitlab.Ref{Name: name, Commit: gitlab.Commit{ID: commitID}}
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.authenticate)
	r.Use(s.count)

	r.Route("/api/v4", func(r chi.Router) {
		r.Get("/groups", s.listGroups)
		r.Get("/groups/{id}/projects", s.listGroupProjects)
		r.Get("/projects", s.listProjects)
		r.Route("/projects/{id}", func(r chi.Router) {
			r.Use(s.injectFailures)
			r.Get("/repository/branches", s.listRefs(func() map[int64][]gitlab.Ref { return s.branches }))
			r.Get("/repository/branches/{branch}", s.getBranch)
			r.Get("/repository/tags", s.listRefs(func() map[int64][]gitlab.Ref { return s.tags }))
			r.Get("/repository/files/{path}", s.getFile)
			r.Get("/repository/commits", s.listCommits)
		})
	})
	return r
}

func (*Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("PRIVATE-TOKEN") != Token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "401 Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		pattern := chi.RouteContext(r.Context()).RoutePattern()
		s.mu.Lock()
		s.hits[trimAPI(pattern)]++
		s.mu.Unlock()
	})
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		status, failing := s.failures[pathID(r, "id")]
		s.mu.Unlock()
		if failing {
			writeJSON(w, status, map[string]string{"message": http.StatusText(status)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) listGroups(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	groups := append([]gitlab.Group(nil), s.groups...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, paginate(r, groups))
}

func (s *Server) listGroupProjects(w http.ResponseWriter, r *http.Request) {
	groupID := pathID(r, "id")
	s.mu.Lock()
	var projects []gitlab.Project
	for _, id := range s.groupProjects[groupID] {
		for _, p := range s.projects {
			if p.ID == id {
				projects = append(projects, p)
			}
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, paginate(r, projects))
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	projects := append([]gitlab.Project(nil), s.projects...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, paginate(r, projects))
}

func (s *Server) listRefs(source func() map[int64][]gitlab.Ref) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		refs := append([]gitlab.Ref(nil), source()[pathID(r, "id")]...)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, paginate(r, refs))
	}
}

func (s *Server) getBranch(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "branch")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.branches[pathID(r, "id")] {
		if b.Name == name {
			writeJSON(w, http.StatusOK, b)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "404 Branch Not Found"})
}

func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	path := pathParam(r, "path")
	key := fileKey{pathID(r, "id"), path, r.URL.Query().Get("ref")}
	s.mu.Lock()
	s.fileFetches++
	content, ok := s.files[key]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "404 File Not Found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"file_name": path,
		"file_path": path,
		"ref":       key.ref,
		"encoding":  "base64",
		"content":   base64.StdEncoding.EncodeToString(content),
	})
}

func (s *Server) listCommits(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	commits := append([]gitlab.Commit(nil), s.commits[pathID(r, "id")]...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, paginate(r, commits))
}

func paginate[T any](r *http.Request, items []T) []T {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	perPage, err := strconv.Atoi(r.URL.Query().Get("per_page"))
	if err != nil || perPage < 1 {
		perPage = 20
	}
	start := (page - 1) * perPage
	if start >= len(items) {
		return []T{}
	}
	end := min(start+perPage, len(items))
	return items[start:end]
}

func pathParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	v, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return v
}

func pathID(r *http.Request, key string) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	return id
}

func trimAPI(pattern string) string {
	const prefix = "/api/v4"
	if len(pattern) >= len(prefix) && pattern[:len(prefix)] == prefix {
		return pattern[len(prefix):]
	}
	return pattern
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
