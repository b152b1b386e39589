package database

import "time"

// Persisted entity states. Servers use Running, clients use Connected.
const (
	StatusStopped   = "stopped"
	StatusStarting  = "starting"
	StatusRunning   = "running"
	StatusConnected = "connected"
	StatusError     = "error"
)

// Webhook payload formats.
const (
	WebhookFormatJSON   = "json"
	WebhookFormatCustom = "custom"
)

type Server struct {
	ID             int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string     `gorm:"uniqueIndex;not null" json:"name"`
	Description    string     `json:"description,omitempty"`
	BindAddr       string     `gorm:"not null;default:0.0.0.0" json:"bind_addr"`
	BindTunnels    string     `gorm:"not null;default:0.0.0.0" json:"bind_tunnels"`
	ControlPort    int        `gorm:"not null;default:7835" json:"control_port"`
	PortRangeStart int        `gorm:"not null;default:1024" json:"port_range_start"`
	PortRangeEnd   int        `gorm:"not null;default:65535" json:"port_range_end"`
	Secret         string     `json:"-"` // Fernet-encrypted
	Status         string     `gorm:"not null;default:stopped;index" json:"status"`
	AutoStart      bool       `gorm:"not null;default:false" json:"auto_start"`
	LastStartedAt  *time.Time `json:"last_started_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type Client struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name            string     `gorm:"uniqueIndex;not null" json:"name"`
	Description     string     `json:"description,omitempty"`
	LocalHost       string     `gorm:"not null;default:localhost" json:"local_host"`
	LocalPort       int        `gorm:"not null" json:"local_port"`
	RemoteServer    string     `gorm:"not null" json:"remote_server"`
	RemotePort      int        `gorm:"not null;default:0" json:"remote_port"`
	AssignedPort    *int       `json:"assigned_port"`
	Secret          string     `json:"-"` // Fernet-encrypted
	Status          string     `gorm:"not null;default:stopped;index" json:"status"`
	AutoStart       bool       `gorm:"not null;default:false" json:"auto_start"`
	WebhookURL      string     `json:"webhook_url,omitempty"`
	WebhookFormat   string     `gorm:"not null;default:json" json:"webhook_format"`
	WebhookTemplate string     `gorm:"type:text" json:"webhook_template,omitempty"`
	LastConnectedAt *time.Time `json:"last_connected_at,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type User struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"uniqueIndex;not null;size:64" json:"username"`
	PasswordHash string    `gorm:"not null" json:"-"`
	DisplayName  string    `json:"display_name,omitempty"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
