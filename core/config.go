package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// empty-course completion policies
const (
	EmptyCourseManual  = "manual"
	EmptyCourseOnEnrol = "on_enroll"
)

type (
	ServerConfig struct {
		Address            string
		Host               string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
		DisableReqLogs     bool
	}

	DatabaseConfig struct {
		Engine        string // postgres | sqlite
		Host          string
		Port          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Name          string
		DisableTLS    bool
		Path          string // sqlite only
	}

	CertificateConfig struct {
		Renderer      string // local | http
		RendererURL   string
		RenderTimeout time.Duration
		Validity      time.Duration // 0: never expires
		ArtifactDir   string
	}

	CompletionConfig struct {
		EmptyCoursePolicy string
		RequireQuizPass   bool
	}

	Config struct {
		Env              string
		Debug            bool
		TestMode         bool
		AppName          string
		Build            string
		SecretKey        string
		RollbarToken     string
		SendgridApiKey   string
		FrontendBaseURL  string
		defaultFromEmail string

		Server      ServerConfig
		Database    DatabaseConfig
		Certificate CertificateConfig
		Completion  CompletionConfig
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c DatabaseConfig) IsSQLite() bool {
	return c.Engine == "sqlite"
}

func (c Config) DefaultFromEmail() mail.Address {
	if addr, err := mail.ParseAddress(c.defaultFromEmail); err == nil {
		return *addr
	}
	return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
}

// NewConfig loads the config from the environment.
// ENV selects the env var prefix and the optional `config/.env.<env>` file.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Rotasi LMS")
	v.SetDefault("build", "dev")
	v.SetDefault("secretKey", "r0t4s1-(dev)-k3y!q9@lms#completion$engine")
	v.SetDefault("defaultFromEmail", "Rotasi LMS <noreply@localhost>")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.disableReqLogs", false)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "rotasi")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.name", "rotasi")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.path", "rotasi.db")

	v.SetDefault("certificate.renderer", "local")
	v.SetDefault("certificate.rendererURL", "")
	v.SetDefault("certificate.renderTimeout", 5*time.Second)
	v.SetDefault("certificate.validity", time.Duration(0))
	v.SetDefault("certificate.artifactDir", "artifacts")

	v.SetDefault("completion.emptyCoursePolicy", EmptyCourseManual)
	v.SetDefault("completion.requireQuizPass", false)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:              env,
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		Build:            v.GetString("build"),
		SecretKey:        v.GetString("secretKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Address:            v.GetString("server.address"),
			Host:               v.GetString("server.host"),
			DebugHost:          v.GetString("server.debugHost"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
			DisableReqLogs:     v.GetBool("server.disableReqLogs"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			Name:          v.GetString("database.name"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			Path:          v.GetString("database.path"),
		},
		Certificate: CertificateConfig{
			Renderer:      v.GetString("certificate.renderer"),
			RendererURL:   v.GetString("certificate.rendererURL"),
			RenderTimeout: v.GetDuration("certificate.renderTimeout"),
			Validity:      v.GetDuration("certificate.validity"),
			ArtifactDir:   v.GetString("certificate.artifactDir"),
		},
		Completion: CompletionConfig{
			EmptyCoursePolicy: v.GetString("completion.emptyCoursePolicy"),
			RequireQuizPass:   v.GetBool("completion.requireQuizPass"),
		},
	}
}

// NewTestConfig returns a Config suited for tests: sqlite storage, no external services.
func NewTestConfig() *Config {
	return &Config{
		Env:              "TEST",
		TestMode:         true,
		AppName:          "Rotasi LMS",
		Build:            "test",
		SecretKey:        "test-secret-key",
		FrontendBaseURL:  "http://localhost:3000",
		defaultFromEmail: "Rotasi LMS <noreply@localhost>",
		Server: ServerConfig{
			Address:            ":0",
			Host:               "localhost",
			ShutdownTimeout:    time.Second,
			JWTExpirationDelta: time.Hour,
			DisableReqLogs:     true,
		},
		Database: DatabaseConfig{Engine: "sqlite"},
		Certificate: CertificateConfig{
			Renderer:      "local",
			RenderTimeout: 2 * time.Second,
		},
		Completion: CompletionConfig{EmptyCoursePolicy: EmptyCourseManual},
	}
}
