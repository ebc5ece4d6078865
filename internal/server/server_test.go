package server_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"devproxy/internal/client"
	"devproxy/internal/config"
	"devproxy/internal/handler"
	"devproxy/internal/metrics"
	"devproxy/internal/middleware"
	"devproxy/internal/server"
	"devproxy/internal/service"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// newStack builds the full request pipeline for a static root and backend.
func newStack(root, backendURL string) *echo.Echo {
	cfg := &config.Config{
		Static: config.StaticConfig{Root: root},
		Upstream: config.UpstreamConfig{
			BaseURL:         backendURL,
			TimeoutSeconds:  2,
			IdleConnections: 4,
		},
		CORS:  config.CORSConfig{AllowOrigin: "*"},
		Admin: config.AdminConfig{Prefix: "/_devproxy"},
	}
	m := metrics.New()

	svc, err := service.NewProxyService(client.NewBackendClient(cfg, discard, m), cfg, discard)
	Expect(err).NotTo(HaveOccurred())
	static, err := handler.NewStaticHandler(cfg, discard)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(static.Close)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(discard)
	e.Use(middleware.ResponseFinalizer(cfg.CORS.AllowOrigin))
	e.Use(middleware.SecurityHeaders())
	handler.RegisterRoutes(e, cfg,
		handler.NewRouter(handler.NewProxyHandler(svc, discard), static),
		handler.NewHealthHandler(cfg, "test"),
		m,
	)
	return e
}

func get(url string) (*http.Response, string) {
	resp, err := http.Get(url)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp, string(body)
}

func expectFinalized(resp *http.Response) {
	Expect(resp.Header.Get("Cache-Control")).To(Equal("no-cache, no-store, must-revalidate"))
	Expect(resp.Header.Get("Pragma")).To(Equal("no-cache"))
	Expect(resp.Header.Get("Expires")).To(Equal("0"))
	Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
}

var _ = Describe("Server", func() {
	Context("creation", func() {
		DescribeTable("accepts valid addresses",
			func(addr string) {
				srv, err := server.New(echo.New(), addr, discard)
				Expect(err).NotTo(HaveOccurred())
				Expect(srv).NotTo(BeNil())
			},
			Entry("hostname", "localhost:5000"),
			Entry("IPv4", "127.0.0.1:5000"),
			Entry("wildcard", "0.0.0.0:5000"),
			Entry("port only", ":5000"),
			Entry("ephemeral port", "127.0.0.1:0"),
		)

		DescribeTable("rejects invalid addresses",
			func(addr string) {
				srv, err := server.New(echo.New(), addr, discard)
				Expect(err).To(HaveOccurred())
				Expect(srv).To(BeNil())
			},
			Entry("too many colons", "invalid:host:port"),
			Entry("missing port", "localhost"),
			Entry("empty port", "localhost:"),
			Entry("port out of range", "localhost:70000"),
			Entry("non-numeric port", "localhost:http"),
			Entry("bad host", "bad_host!:5000"),
		)

		It("applies inbound timeouts", func() {
			e := echo.New()
			_, err := server.New(e, ":0", discard)
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Server.ReadTimeout).To(Equal(30 * time.Second))
			Expect(e.Server.ReadHeaderTimeout).To(Equal(10 * time.Second))
			Expect(e.Server.IdleTimeout).To(Equal(120 * time.Second))
			Expect(e.Server.WriteTimeout).To(BeZero())
		})
	})

	Context("serving", func() {
		var (
			srv     *server.Server
			baseURL string
			root    string
			hits    atomic.Int32
		)

		startWith := func(backendURL string) {
			var err error
			srv, err = server.New(newStack(root, backendURL), "127.0.0.1:0", discard)
			Expect(err).NotTo(HaveOccurred())
			addr, err := srv.Start()
			Expect(err).NotTo(HaveOccurred())
			baseURL = "http://" + addr.String()
		}

		BeforeEach(func() {
			hits.Store(0)
			root = filepath.Join(GinkgoT().TempDir(), "frontend")
			Expect(os.MkdirAll(root, 0o755)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(root, "index.html"), []byte("<h1>Pokedex</h1>"), 0o644)).To(Succeed())
		})

		AfterEach(func() {
			if srv != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				Expect(srv.Shutdown(ctx)).To(Succeed())
				srv = nil
			}
		})

		It("serves static files and forwards API requests", func() {
			backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Cache-Control", "max-age=3600")
				_, _ = w.Write([]byte(`{"path":"` + r.URL.RequestURI() + `"}`))
			}))
			DeferCleanup(backend.Close)
			startWith(backend.URL)

			resp, body := get(baseURL + "/")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body).To(Equal("<h1>Pokedex</h1>"))
			expectFinalized(resp)
			Expect(hits.Load()).To(BeZero())

			resp, body = get(baseURL + "/api/pokemon/search?q=pika")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body).To(Equal(`{"path":"/api/pokemon/search?q=pika"}`))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
			Expect(resp.TransferEncoding).To(BeEmpty())
			expectFinalized(resp)
			Expect(hits.Load()).To(Equal(int32(1)))
		})

		It("keeps serving after a backend failure", func() {
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).NotTo(HaveOccurred())
			deadURL := "http://" + ln.Addr().String()
			Expect(ln.Close()).To(Succeed())
			startWith(deadURL)

			resp, body := get(baseURL + "/api/health")
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/plain"))
			Expect(body).To(ContainSubstring("backend"))
			expectFinalized(resp)

			resp, body = get(baseURL + "/index.html")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body).To(Equal("<h1>Pokedex</h1>"))
		})

		It("rejects non-GET methods", func() {
			startWith("http://127.0.0.1:1")

			resp, err := http.Post(baseURL+"/api/health", "application/json", nil)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusMethodNotAllowed))
			Expect(resp.Header.Get("Allow")).To(Equal("GET"))
			expectFinalized(resp)
		})

		It("stops accepting connections after shutdown", func() {
			startWith("http://127.0.0.1:1")

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			Expect(srv.Shutdown(ctx)).To(Succeed())
			srv = nil

			_, err := http.Get(baseURL + "/")
			Expect(err).To(HaveOccurred())
		})
	})

	Context("binding", func() {
		It("reports an address already in use", func() {
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(ln.Close)

			srv, err := server.New(echo.New(), ln.Addr().String(), discard)
			Expect(err).NotTo(HaveOccurred())
			_, err = srv.Start()
			Expect(err).To(MatchError(ContainSubstring("bind")))
		})
	})
})
