package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/SaintWyss/ragcore/internal/config"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Load", func() {
	var (
		tempDir    string
		configFile string
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "ragcore-config-test")
		Expect(err).NotTo(HaveOccurred())
		configFile = filepath.Join(tempDir, "config.yaml")
		os.Clearenv()
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
		os.Clearenv()
	})

	Context("when the config file has valid content", func() {
		BeforeEach(func() {
			valid := `
server:
  http_port: "9000"
  metrics_port: "9100"

database:
  url: "postgres://localhost/ragcore"

retrieval:
  enable_hybrid_search: false
  rrf_k: 40
  max_context_chars: 8000
  fts_language_allowlist:
    - english

retry:
  max_attempts: 3
  base_delay: 2s
  max_delay: 20s

logging:
  level: "debug"
  format: "console"
`
			Expect(os.WriteFile(configFile, []byte(valid), 0644)).To(Succeed())
		})

		It("loads every section", func() {
			cfg, err := config.Load(configFile)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Server.HTTPPort).To(Equal("9000"))
			Expect(cfg.Server.MetricsPort).To(Equal("9100"))
			Expect(cfg.Database.URL).To(Equal("postgres://localhost/ragcore"))
			Expect(cfg.Retrieval.EnableHybridSearch).To(BeFalse())
			Expect(cfg.Retrieval.RRFK).To(Equal(40))
			Expect(cfg.Retrieval.MaxContextChars).To(Equal(8000))
			Expect(cfg.Retrieval.FTSLanguageAllow).To(Equal([]string{"english"}))
			Expect(cfg.Retry.MaxAttempts).To(Equal(3))
			Expect(cfg.Retry.BaseDelay).To(Equal(2 * time.Second))
			Expect(cfg.Retry.MaxDelay).To(Equal(20 * time.Second))
			Expect(cfg.Logging.Level).To(Equal("debug"))
			Expect(cfg.Logging.Format).To(Equal("console"))
		})
	})

	Context("when the config file is minimal", func() {
		BeforeEach(func() {
			Expect(os.WriteFile(configFile, []byte("database:\n  url: \"postgres://x\"\n"), 0644)).To(Succeed())
		})

		It("fills in defaults", func() {
			cfg, err := config.Load(configFile)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Server.HTTPPort).To(Equal("8080"))
			Expect(cfg.Uploads.MaxUploadBytes).To(Equal(int64(25 * 1024 * 1024)))
			Expect(cfg.Retrieval.RRFK).To(Equal(60))
			Expect(cfg.Retrieval.MaxContextChars).To(Equal(12000))
			Expect(cfg.Retrieval.FTSLanguageAllow).To(ConsistOf("english", "spanish", "simple"))
			Expect(cfg.Retry.MaxAttempts).To(Equal(4))
		})
	})

	Context("when the config file does not exist", func() {
		It("returns an error", func() {
			_, err := config.Load(filepath.Join(tempDir, "missing.yaml"))
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("failed to read config file"))
		})
	})

	Context("when the config file has invalid YAML", func() {
		BeforeEach(func() {
			Expect(os.WriteFile(configFile, []byte("server:\n  http_port: [\n"), 0644)).To(Succeed())
		})

		It("returns an error", func() {
			_, err := config.Load(configFile)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("failed to parse config file"))
		})
	})

	Context("when an unsupported FTS language is configured", func() {
		BeforeEach(func() {
			invalid := "retrieval:\n  fts_language_allowlist:\n    - klingon\n"
			Expect(os.WriteFile(configFile, []byte(invalid), 0644)).To(Succeed())
		})

		It("fails validation", func() {
			_, err := config.Load(configFile)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("unsupported FTS language"))
		})
	})

	Context("when APP_ENV=production and JWT_SECRET is too short", func() {
		BeforeEach(func() {
			Expect(os.WriteFile(configFile, []byte("database:\n  url: \"postgres://x\"\n"), 0644)).To(Succeed())
			os.Setenv("APP_ENV", "production")
			os.Setenv("JWT_SECRET", "short")
			os.Setenv("JWT_COOKIE_SECURE", "true")
			os.Setenv("METRICS_REQUIRE_AUTH", "true")
		})

		It("fails fast", func() {
			_, err := config.Load(configFile)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("JWT_SECRET must be at least 32 characters"))
		})
	})

	Context("when APP_ENV=production and JWT_COOKIE_SECURE is false", func() {
		BeforeEach(func() {
			Expect(os.WriteFile(configFile, []byte("database:\n  url: \"postgres://x\"\n"), 0644)).To(Succeed())
			os.Setenv("APP_ENV", "production")
			os.Setenv("JWT_SECRET", "a-secret-that-is-at-least-32-characters-long")
			os.Setenv("METRICS_REQUIRE_AUTH", "true")
		})

		It("fails fast", func() {
			_, err := config.Load(configFile)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("JWT_COOKIE_SECURE must be true"))
		})
	})

	Context("when APP_ENV=production and all requirements are satisfied", func() {
		BeforeEach(func() {
			Expect(os.WriteFile(configFile, []byte("database:\n  url: \"postgres://x\"\n"), 0644)).To(Succeed())
			os.Setenv("APP_ENV", "production")
			os.Setenv("JWT_SECRET", "a-secret-that-is-at-least-32-characters-long")
			os.Setenv("JWT_COOKIE_SECURE", "true")
			os.Setenv("METRICS_REQUIRE_AUTH", "true")
		})

		It("loads successfully", func() {
			_, err := config.Load(configFile)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Context("when environment variables override the file", func() {
		BeforeEach(func() {
			Expect(os.WriteFile(configFile, []byte("database:\n  url: \"postgres://x\"\n"), 0644)).To(Succeed())
			os.Setenv("HTTP_PORT", "7000")
			os.Setenv("MAX_UPLOAD_BYTES", "1048576")
			os.Setenv("ENABLE_HYBRID_SEARCH", "false")
			os.Setenv("RRF_K", "25")
			os.Setenv("FAKE_LLM", "true")
			os.Setenv("FAKE_EMBEDDINGS", "true")
		})

		It("applies env overrides on top of file and defaults", func() {
			cfg, err := config.Load(configFile)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Server.HTTPPort).To(Equal("7000"))
			Expect(cfg.Uploads.MaxUploadBytes).To(Equal(int64(1048576)))
			Expect(cfg.Retrieval.EnableHybridSearch).To(BeFalse())
			Expect(cfg.Retrieval.RRFK).To(Equal(25))
			Expect(cfg.Providers.FakeLLM).To(BeTrue())
			Expect(cfg.Providers.FakeEmbeddings).To(BeTrue())
		})
	})

	Context("when an env-provided boolean is malformed", func() {
		BeforeEach(func() {
			Expect(os.WriteFile(configFile, []byte("database:\n  url: \"postgres://x\"\n"), 0644)).To(Succeed())
			os.Setenv("ENABLE_HYBRID_SEARCH", "not-a-bool")
		})

		It("returns an error", func() {
			_, err := config.Load(configFile)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("invalid ENABLE_HYBRID_SEARCH"))
		})
	})
})
