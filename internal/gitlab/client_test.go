package gitlab_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/gitlab-composer-registry/internal/gitlab"
	"github.com/stacklok/gitlab-composer-registry/internal/gitlab/gitlabtest"
)

var activity = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, endpoint string) *gitlab.APIClient {
	t.Helper()
	c, err := gitlab.NewClient(gitlab.Options{
		Endpoint:          endpoint,
		Token:             gitlabtest.Token,
		RequestsPerSecond: -1,
		RetryMax:          -1,
		HTTPClient:        http.DefaultClient,
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		endpoint string
		wantErr  bool
	}{
		{name: "empty endpoint", endpoint: "", wantErr: true},
		{name: "unsupported scheme", endpoint: "ftp://gitlab.example.com", wantErr: true},
		{name: "plain host", endpoint: "https://gitlab.example.com"},
		{name: "api suffix", endpoint: "https://gitlab.example.com/api/v4/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := gitlab.NewClient(gitlab.Options{Endpoint: tt.endpoint, HTTPClient: http.DefaultClient})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			c.Close()
		})
	}
}

func TestClientConcurrentClose(t *testing.T) {
	t.Parallel()

	// The default transport runs the DNS cache refresh that Close stops
	c, err := gitlab.NewClient(gitlab.Options{Endpoint: "https://gitlab.example.com"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NotPanics(t, c.Close)
		}()
	}
	wg.Wait()

	assert.NotPanics(t, c.Close, "closing again is a no-op")
}

func TestClientListsAndPaginates(t *testing.T) {
	t.Parallel()

	srv := gitlabtest.NewServer(t)
	for i := int64(1); i <= 150; i++ {
		srv.AddProject(gitlabtest.NewProject(i, fmt.Sprintf("acme/lib%d", i), activity))
	}
	c := newTestClient(t, srv.Endpoint())

	ctx := context.Background()
	first, err := c.ListProjects(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, first, gitlab.PerPage)

	all, err := gitlab.AllProjects(ctx, c)
	require.NoError(t, err)
	assert.Len(t, all, 150)
	assert.Equal(t, "acme/lib150", all[149].PathWithNamespace)
	assert.True(t, all[0].LastActivityAt.Equal(activity))
	// One direct call, then two pages and the terminating empty page
	assert.Equal(t, 4, srv.Hits("/projects"))
}

func TestClientGroups(t *testing.T) {
	t.Parallel()

	srv := gitlabtest.NewServer(t)
	srv.AddGroup(10, "acme")
	srv.AddGroup(11, "other")
	srv.AddProject(gitlabtest.NewProject(1, "acme/lib", activity), 10)
	srv.AddProject(gitlabtest.NewProject(2, "other/lib", activity), 11)
	c := newTestClient(t, srv.Endpoint())

	groups, err := gitlab.AllGroups(context.Background(), c)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "acme", groups[0].Name)

	projects, err := gitlab.AllGroupProjects(context.Background(), c, 10)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "acme/lib", projects[0].PathWithNamespace)
}

func TestClientRefsAndFiles(t *testing.T) {
	t.Parallel()

	srv := gitlabtest.NewServer(t)
	srv.AddProject(gitlabtest.NewProject(1, "acme/lib", activity))
	srv.AddBranch(1, "main", "c1", []byte(`{"name":"acme/lib"}`))
	srv.AddBranch(1, "feature/x", "c2", nil)
	srv.AddTag(1, "1.2.0", "c3", []byte(`{"name":"acme/lib","version":"1.2.0"}`))
	c := newTestClient(t, srv.Endpoint())
	ctx := context.Background()

	branches, err := gitlab.AllBranches(ctx, c, 1)
	require.NoError(t, err)
	assert.Equal(t, []gitlab.Ref{
		{Name: "main", Commit: gitlab.Commit{ID: "c1"}},
		{Name: "feature/x", Commit: gitlab.Commit{ID: "c2"}},
	}, branches)

	tags, err := gitlab.AllTags(ctx, c, 1)
	require.NoError(t, err)
	assert.Equal(t, []gitlab.Ref{{Name: "1.2.0", Commit: gitlab.Commit{ID: "c3"}}}, tags)

	branch, err := c.GetBranch(ctx, 1, "feature/x")
	require.NoError(t, err)
	assert.Equal(t, "c2", branch.Commit.ID)

	content, err := c.GetFile(ctx, 1, "composer.json", "c1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"acme/lib"}`, string(content))

	missing, err := c.GetFile(ctx, 1, "composer.json", "c2")
	require.NoError(t, err)
	assert.Nil(t, missing, "a missing file is not an error")

	_, err = c.GetBranch(ctx, 1, "nope")
	require.Error(t, err)
	assert.True(t, gitlab.IsNotFound(err))
}

func TestClientRejectsBadToken(t *testing.T) {
	t.Parallel()

	srv := gitlabtest.NewServer(t)
	c, err := gitlab.NewClient(gitlab.Options{
		Endpoint:          srv.Endpoint(),
		Token:             "wrong",
		RequestsPerSecond: -1,
		RetryMax:          -1,
		HTTPClient:        http.DefaultClient,
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	_, err = c.ListProjects(context.Background(), 1)
	var httpErr *gitlab.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
}

func TestClientRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"name":"acme"}]`))
	}))
	t.Cleanup(srv.Close)

	c, err := gitlab.NewClient(gitlab.Options{
		Endpoint:          srv.URL,
		RequestsPerSecond: -1,
		RetryMax:          2,
		HTTPClient:        http.DefaultClient,
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	groups, err := c.ListGroups(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, groups, 1)
	assert.EqualValues(t, 2, calls.Load())
}

func TestClientCircuitBreakerOpens(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	c := newTestClient(t, srv.URL)

	for range 5 {
		_, err := c.ListGroups(context.Background(), 1)
		var httpErr *gitlab.HTTPError
		require.ErrorAs(t, err, &httpErr)
	}

	_, err := c.ListGroups(context.Background(), 1)
	require.ErrorIs(t, err, gitlab.ErrUpstreamUnavailable)
	assert.EqualValues(t, 5, calls.Load(), "an open breaker must not reach the server")
}

func TestClientNotFoundDoesNotTripBreaker(t *testing.T) {
	t.Parallel()

	srv := gitlabtest.NewServer(t)
	c := newTestClient(t, srv.Endpoint())

	for range 10 {
		_, err := c.GetBranch(context.Background(), 99, "main")
		require.True(t, gitlab.IsNotFound(err))
	}
}

func TestCheckNotEmpty(t *testing.T) {
	t.Parallel()

	srv := gitlabtest.NewServer(t)
	empty := gitlabtest.NewProject(1, "acme/empty", activity)
	empty.DefaultBranch = ""
	srv.AddProject(empty)

	withCommits := gitlabtest.NewProject(2, "acme/orphan", activity)
	withCommits.DefaultBranch = ""
	srv.AddProject(withCommits)
	srv.AddBranch(2, "wip", "c1", nil)

	c := newTestClient(t, srv.Endpoint())
	ctx := context.Background()

	require.ErrorIs(t, gitlab.CheckNotEmpty(ctx, c, empty), gitlab.ErrEmptyRepository)
	require.NoError(t, gitlab.CheckNotEmpty(ctx, c, withCommits))
	require.NoError(t, gitlab.CheckNotEmpty(ctx, c, gitlabtest.NewProject(3, "acme/lib", activity)))
	assert.Equal(t, 2, srv.Hits("/projects/{id}/repository/commits"))
}

func TestIsRecoverable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "empty repository", err: fmt.Errorf("wrapped: %w", gitlab.ErrEmptyRepository), want: true},
		{name: "not found", err: gitlab.NewHTTPError(404, "u", "Not Found"), want: true},
		{name: "forbidden", err: gitlab.NewHTTPError(403, "u", "Forbidden"), want: true},
		{name: "token rejected", err: gitlab.NewHTTPError(401, "u", "401 Unauthorized"), want: false},
		{name: "wrapped token rejected", err: fmt.Errorf("branches: %w", gitlab.NewHTTPError(401, "u", "Unauthorized")), want: false},
		{name: "rate limited", err: gitlab.NewHTTPError(429, "u", "Too Many Requests"), want: false},
		{name: "request timeout", err: gitlab.NewHTTPError(408, "u", "Request Timeout"), want: false},
		{name: "server error", err: gitlab.NewHTTPError(502, "u", "Bad Gateway"), want: false},
		{name: "breaker open", err: gitlab.ErrUpstreamUnavailable, want: false},
		{name: "other", err: errors.New("boom"), want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, gitlab.IsRecoverable(tt.err))
		})
	}
}

func TestHTTPErrorMessage(t *testing.T) {
	t.Parallel()

	err := gitlab.NewHTTPError(404, "http://example.com", "Not Found")
	assert.Equal(t, "HTTP 404 for URL http://example.com: Not Found", err.Error())
}
