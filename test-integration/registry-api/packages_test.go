package integration

import (
	"net/http"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stacklok/gitlab-composer-registry/internal/gitlab/gitlabtest"
	"github.com/stacklok/gitlab-composer-registry/test-integration/registry-api/helpers"
)

var _ = Describe("Package Index Integration", Label("packages"), func() {
	var (
		tempDir      string
		gitlab       *gitlabtest.Server
		serverHelper *helpers.ServerTestHelper
		lib          helpers.Library
	)

	BeforeEach(func() {
		tempDir = createTempDir("packages-test-")
		serverHelper = nil
		gitlab = gitlabtest.Start()

		lib = helpers.Library{ID: 1, Path: "acme/lib", Tags: []string{"1.0.0", "v1.1.0"}}
		helpers.AddLibrary(gitlab, lib, time.Now().Add(-24*time.Hour))
		helpers.AddLibrary(gitlab, helpers.Library{ID: 2, Path: "acme/tool"}, time.Now().Add(-24*time.Hour))
	})

	AfterEach(func() {
		if serverHelper != nil {
			Expect(serverHelper.StopServer()).To(Succeed())
		}
		gitlab.Close()
		cleanupTempDir(tempDir)
	})

	startServer := func(opts helpers.ConfigOptions) {
		configFile := helpers.WriteConfigYAML(tempDir, gitlab, opts)
		serverHelper = helpers.NewServerTestHelper(ctx, configFile)
		Expect(serverHelper.StartServer()).To(Succeed())
		serverHelper.WaitForServerReady(10 * time.Second)
	}

	Context("Building on request", func() {
		BeforeEach(func() {
			startServer(helpers.ConfigOptions{})
		})

		It("should report not ready before the first build", func() {
			resp, err := serverHelper.Get("/readiness")
			Expect(err).NotTo(HaveOccurred())
			_ = resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
		})

		It("should serve every branch and tag of every project", func() {
			idx, resp := serverHelper.GetPackages("")
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
			Expect(resp.Header.Get("Last-Modified")).NotTo(BeEmpty())

			Expect(idx.Packages).To(HaveKey("acme/lib"))
			Expect(idx.Packages).To(HaveKey("acme/tool"))
			Expect(idx.Packages["acme/lib"].Versions()).To(ConsistOf(
				"1.0.0", "dev-1.0.0", "v1.1.0", "dev-v1.1.0", "dev-main",
			))
			Expect(idx.Packages["acme/tool"].Versions()).To(ConsistOf("dev-main"))

			src, ok := idx.Packages["acme/lib"]["1.0.0"].Source()
			Expect(ok).To(BeTrue())
			Expect(src.Type).To(Equal("git"))
			Expect(src.Reference).To(Equal("1-1.0.0"))
			Expect(src.URL).To(ContainSubstring("acme/lib"))

			resp, err := serverHelper.Get("/readiness")
			Expect(err).NotTo(HaveOccurred())
			_ = resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should answer conditional requests with 304 when nothing changed", func() {
			_, resp := serverHelper.GetPackages("")
			lastModified := resp.Header.Get("Last-Modified")

			resp, err := serverHelper.Get("/packages.json", "If-Modified-Since", lastModified)
			Expect(err).NotTo(HaveOccurred())
			_ = resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotModified))
		})

		It("should rebuild when a project shows new activity", func() {
			idx, _ := serverHelper.GetPackages("")
			Expect(idx.Packages["acme/lib"]).NotTo(HaveKey("2.0.0"))

			helpers.AddTag(gitlab, lib, "2.0.0")
			gitlab.SetActivity(lib.ID, time.Now().Add(time.Second))

			idx, _ = serverHelper.GetPackages("")
			Expect(idx.Packages["acme/lib"]).To(HaveKey("2.0.0"))
		})

		It("should not contact repositories while the index is current", func() {
			serverHelper.GetPackages("")
			gitlab.ResetHits()

			serverHelper.GetPackages("")
			Expect(gitlab.Hits("/projects/{id}/repository/branches")).To(BeZero())
			Expect(gitlab.FileFetches()).To(BeZero())
		})

		It("should rebuild when forced and record the build status", func() {
			serverHelper.GetPackages("")
			serverHelper.GetPackages("force=1")

			status := serverHelper.GetStatus()
			Expect(status["phase"]).To(Equal("Complete"))
			Expect(status["reason"]).To(Equal("forced"))
			Expect(status["packageCount"]).To(BeEquivalentTo(2))
			Expect(status["repositoryCount"]).To(BeEquivalentTo(2))
		})

		It("should leave out a repository the token cannot read", func() {
			gitlab.FailProject(2, http.StatusForbidden)

			idx, _ := serverHelper.GetPackages("")
			Expect(idx.Packages).To(HaveKey("acme/lib"))
			Expect(idx.Packages).NotTo(HaveKey("acme/tool"))
		})
	})

	Context("Group filtering", func() {
		BeforeEach(func() {
			gitlab.AddGroup(10, "platform")
			helpers.AddLibrary(gitlab, helpers.Library{ID: 3, Path: "platform/core", Group: 10}, time.Now().Add(-time.Hour))
			startServer(helpers.ConfigOptions{Groups: []string{"platform"}})
		})

		It("should mirror only projects of the configured groups", func() {
			idx, _ := serverHelper.GetPackages("")
			Expect(idx.Packages.Names()).To(ConsistOf("platform/core"))
		})
	})

	Context("Background rebuilds", func() {
		BeforeEach(func() {
			rebuildOnRequest := false
			startServer(helpers.ConfigOptions{
				RebuildOnRequest: &rebuildOnRequest,
				RebuildInterval:  "200ms",
			})
		})

		It("should build the index without any request and pick up new activity", func() {
			Eventually(func() int {
				resp, err := serverHelper.Get("/readiness")
				if err != nil {
					return 0
				}
				_ = resp.Body.Close()
				return resp.StatusCode
			}, 10*time.Second, 100*time.Millisecond).Should(Equal(http.StatusOK))

			helpers.AddTag(gitlab, lib, "3.0.0")
			gitlab.SetActivity(lib.ID, time.Now().Add(time.Second))

			Eventually(func() []string {
				idx, _ := serverHelper.GetPackages("")
				return idx.Packages["acme/lib"].Versions()
			}, 10*time.Second, 100*time.Millisecond).Should(ContainElement("3.0.0"))
		})
	})

	Context("Static packages", func() {
		var staticFile string

		BeforeEach(func() {
			staticFile = filepath.Join(tempDir, "static-repos.json")
			helpers.WriteStaticFile(staticFile, `{
				// mirrored from packagist
				"vendor/static": {
					"1.0.0": {"name": "vendor/static", "version": "1.0.0"},
				},
			}`, time.Now().Add(-time.Hour))
			startServer(helpers.ConfigOptions{StaticFile: staticFile})
		})

		It("should merge static packages and mark their origin", func() {
			idx, _ := serverHelper.GetPackages("")
			Expect(idx.Packages).To(HaveKey("vendor/static"))
			Expect(idx.Packages).To(HaveKey("acme/lib"))
			Expect(string(idx.Packages["vendor/static"]["1.0.0"]["extra"])).To(MatchJSON(`{"_source": "static"}`))
		})

		It("should rebuild when the static file changes", func() {
			serverHelper.GetPackages("")

			helpers.WriteStaticFile(staticFile, `{
				"vendor/static": {
					"2.0.0": {"name": "vendor/static", "version": "2.0.0"},
				},
			}`, time.Now().Add(time.Second))

			idx, _ := serverHelper.GetPackages("")
			Expect(idx.Packages["vendor/static"].Versions()).To(ConsistOf("2.0.0"))
		})
	})
})
