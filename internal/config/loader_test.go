package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/promille/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldResemble, config.New())
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("PROMILLE_ADDR", ":8080")
			_ = os.Setenv("PROMILLE_QUEUE_SIZE", "500")
			_ = os.Setenv("PROMILLE_WORKER_COUNT", "3")
			_ = os.Setenv("PROMILLE_LEGAL_LIMIT", "0.2")
			_ = os.Setenv("PROMILLE_CORS_ORIGINS", "https://a.example,https://b.example")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.EventQueueSize, convey.ShouldEqual, 500)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 3)
				convey.So(cfg.LegalLimit, convey.ShouldEqual, 0.2)
				convey.So(cfg.CORSOrigins, convey.ShouldResemble, []string{"https://a.example", "https://b.example"})
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
queue_size: 300
elimination_rate_per_hour: 0.12
distribution_constants:
  male: 0.7
  female: 0.6
  other: 0.65
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("PROMILLE_CONFIG", tmpFile)
			_ = os.Setenv("PROMILLE_ADDR", ":7070")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then env overrides the file and the file overrides defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.EventQueueSize, convey.ShouldEqual, 300)
				convey.So(cfg.EliminationRatePerHour, convey.ShouldEqual, 0.12)
				convey.So(cfg.DistributionConstants["female"], convey.ShouldEqual, 0.6)
				convey.So(cfg.DedupeSize, convey.ShouldEqual, 50_000)
			})
		})

		convey.Convey("When loading a dotenv file", func() {
			tmpFile := createTempFile("promille-*.env", "PROMILLE_WORKER_COUNT=7\n")
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("PROMILLE_ENV_FILE", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then its variables are applied", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 7)
			})
		})

		convey.Convey("When loading config with invalid YAML", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("PROMILLE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the config file does not exist", func() {
			_ = os.Setenv("PROMILLE_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a numeric variable is not a number", func() {
			_ = os.Setenv("PROMILLE_QUEUE_SIZE", "invalid")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When validation fails", func() {
			cases := map[string]string{
				"PROMILLE_ADDR":                      "",
				"PROMILLE_STORE":                     "redis",
				"PROMILLE_WORKER_COUNT":              "0",
				"PROMILLE_SAMPLE_CADENCE_MINUTES":    "0",
				"PROMILLE_ELIMINATION_RATE_PER_HOUR": "-1",
			}
			for key, value := range cases {
				_ = os.Setenv(key, value)
				cfg, err := config.Load(ctx)
				_ = os.Unsetenv(key)

				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			}
		})

		convey.Convey("When the postgres store has no url", func() {
			_ = os.Setenv("PROMILLE_STORE", "postgres")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then validation fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "database_url")
			})
		})
	})
}

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				if key := kv[:i]; len(key) > len("PROMILLE_") && key[:len("PROMILLE_")] == "PROMILLE_" {
					_ = os.Unsetenv(key)
				}
				break
			}
		}
	}
}

func createTempConfigFile(content string) string {
	return createTempFile("promille-config-*.yaml", content)
}

func createTempFile(pattern, content string) string {
	tmpFile, err := os.CreateTemp("", pattern)
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
