package config

import (
	"log"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// InsecureJWTSecret is used when BORUI_JWT_SECRET is unset.
const InsecureJWTSecret = "change-me-in-production-this-is-not-secure"

type Settings struct {
	DataPath     string `envconfig:"DATA_PATH" default:"./data"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"./data/borui.db"`
	LogPath      string `envconfig:"LOG_PATH" default:""`
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:"0.0.0.0:3000"`
	// AllowedIPs restricts the HTTP surface to these IPs and CIDRs,
	// comma-separated. Empty allows everyone.
	AllowedIPs string `envconfig:"ALLOWED_IPS" default:""`

	// Auth
	JWTSecret         string        `envconfig:"JWT_SECRET" default:""`
	TokenTTL          time.Duration `envconfig:"TOKEN_TTL" default:"24h"`
	AuthDisabled      bool          `envconfig:"AUTH_DISABLED" default:"false"`
	InitAdmin         string        `envconfig:"INIT_ADMIN" default:"admin"`
	InitAdminPassword string        `envconfig:"INIT_ADMIN_PASSWORD" default:""`

	// Tunnel supervision
	StartTimeout        time.Duration `envconfig:"START_TIMEOUT" default:"15s"`
	StopGrace           time.Duration `envconfig:"STOP_GRACE" default:"100ms"`
	MaintenanceSchedule string        `envconfig:"MAINTENANCE_SCHEDULE" default:"@every 5s"`
	WebhookTimeout      time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"10s"`

	ProvisionFile string `envconfig:"PROVISION_FILE" default:""`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("BORUI", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if Cfg.JWTSecret == "" {
		log.Printf("WARNING: BORUI_JWT_SECRET is not set, using an insecure default")
		Cfg.JWTSecret = InsecureJWTSecret
	}
}

// ResolvedLogPath returns LogPath, defaulting to borui.log under DataPath.
func (s Settings) ResolvedLogPath() string {
	if s.LogPath != "" {
		return s.LogPath
	}
	return filepath.Join(s.DataPath, "borui.log")
}
