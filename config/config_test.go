package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hyperdatalab/gateway/config"
	"github.com/hyperdatalab/gateway/internal/forwarder"
)

var _ = Describe("Config", func() {
	var (
		tempDir string
		origDir string
	)

	BeforeEach(func() {
		var err error
		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		tempDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())

		Expect(os.Chdir(tempDir)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
		os.RemoveAll(tempDir)
		os.Unsetenv(config.BackendURLEnv)
		os.Unsetenv("CLIENT_MAX_RETRIES")
	})

	Describe("Load", func() {
		Context("with no config file", func() {
			It("should use defaults", func() {
				cfg, err := config.Load("")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.Address).To(Equal(":8080"))
				Expect(cfg.Server.Environment).To(Equal(config.EnvDev))
				Expect(cfg.Upstream.Prefix).To(Equal("/api/v1"))
				Expect(cfg.Upstream.BaseURL).To(BeEmpty())
				Expect(cfg.Proxy.ResponseMode).To(Equal(forwarder.ModeJSONEnvelope))
				Expect(cfg.Client.MaxRetries).To(Equal(3))
				Expect(cfg.ClientTimeout()).To(Equal(30 * time.Second))
				Expect(cfg.ClientRetryDelay()).To(Equal(time.Second))
				Expect(cfg.Client.HealthPath).To(Equal("/api/v1/health"))
				Expect(cfg.CircuitBreaker.Threshold).To(Equal(0))
			})

			It("should read the backend URL from the environment", func() {
				os.Setenv(config.BackendURLEnv, "https://abc.ngrok-free.app")

				cfg, err := config.Load("")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Upstream.BaseURL).To(Equal("https://abc.ngrok-free.app"))
			})

			It("should map nested keys to underscored environment variables", func() {
				os.Setenv("CLIENT_MAX_RETRIES", "5")

				cfg, err := config.Load("")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Client.MaxRetries).To(Equal(5))
			})
		})

		Context("with a valid config file", func() {
			BeforeEach(func() {
				content := `
server:
  address: ":9090"
  environment: "prod"

upstream:
  base_url: "https://backend.example.com"

proxy:
  response_mode: "passthrough"

health_check:
  interval: "10s"

circuit_breaker:
  threshold: 4
  reset_timeout: "15s"

client:
  base_url: "https://gateway.example.com"
  max_retries: 2
  timeout: "5s"
  retry_delay: "250ms"
  health_path: "/health"

logging:
  level: "debug"
`
				Expect(os.WriteFile(filepath.Join(tempDir, "config.yaml"), []byte(content), 0644)).To(Succeed())
			})

			It("should load every section", func() {
				cfg, err := config.Load("")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.Address).To(Equal(":9090"))
				Expect(cfg.Upstream.BaseURL).To(Equal("https://backend.example.com"))
				Expect(cfg.Proxy.ResponseMode).To(Equal(forwarder.ModePassthrough))
				Expect(cfg.HealthCheckInterval()).To(Equal(10 * time.Second))
				Expect(cfg.CircuitBreaker.Threshold).To(Equal(4))
				Expect(cfg.CircuitBreakerResetTimeout()).To(Equal(15 * time.Second))
				Expect(cfg.Client.MaxRetries).To(Equal(2))
				Expect(cfg.ClientTimeout()).To(Equal(5 * time.Second))
				Expect(cfg.ClientRetryDelay()).To(Equal(250 * time.Millisecond))
				Expect(cfg.Client.HealthPath).To(Equal("/health"))
				Expect(cfg.Logging.Level).To(Equal(config.LogLevelDebug))
			})

			It("should let the environment override the file", func() {
				os.Setenv(config.BackendURLEnv, "https://override.example.com")

				cfg, err := config.Load("")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Upstream.BaseURL).To(Equal("https://override.example.com"))
			})

			It("should load an explicit file path", func() {
				cfg, err := config.Load(filepath.Join(tempDir, "config.yaml"))
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.Environment).To(Equal(config.EnvProd))
			})
		})

		Context("with an invalid config file", func() {
			It("should reject an unknown response mode", func() {
				content := "proxy:\n  response_mode: \"xml\"\n"
				Expect(os.WriteFile(filepath.Join(tempDir, "config.yaml"), []byte(content), 0644)).To(Succeed())

				_, err := config.Load("")
				Expect(err).To(HaveOccurred())
			})

			It("should reject a non-http backend URL", func() {
				os.Setenv(config.BackendURLEnv, "ftp://backend.example.com")

				_, err := config.Load("")
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("Validate", func() {
		var cfg *config.Config

		BeforeEach(func() {
			var err error
			cfg, err = config.Load("")
			Expect(err).NotTo(HaveOccurred())
		})

		It("should accept the defaults", func() {
			Expect(cfg.Validate()).To(Succeed())
		})

		It("should reject an invalid environment", func() {
			cfg.Server.Environment = "qa"
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject an invalid listen address", func() {
			cfg.Server.Address = "invalid:host:port"
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject a malformed duration", func() {
			cfg.Client.Timeout = "soon"
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject a negative retry count", func() {
			cfg.Client.MaxRetries = -1
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject a prefix with a trailing slash", func() {
			cfg.Upstream.Prefix = "/api/v1/"
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		DescribeTable("should accept every forwarder response mode",
			func(mode string) {
				cfg.Proxy.ResponseMode = mode
				Expect(cfg.Validate()).To(Succeed())
			},
			Entry("envelope", forwarder.ModeJSONEnvelope),
			Entry("passthrough", forwarder.ModePassthrough),
		)

		It("should reject a relative client health path", func() {
			cfg.Client.HealthPath = "health"
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should accept a disabled health check", func() {
			cfg.HealthCheck.Interval = "0s"
			Expect(cfg.Validate()).To(Succeed())
			Expect(cfg.HealthCheckInterval()).To(BeZero())
		})
	})
})
