// Package provision seeds servers and clients from a YAML file at boot, so
// a deployment can be declared without the dashboard.
//
// Entries are matched to existing records by name and overwritten; records
// not named in the file are left alone. Runtime status is never touched.
package provision

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/borui/borui/internal/crypto"
	"github.com/borui/borui/internal/database"
	"github.com/borui/borui/internal/logutil"
	"github.com/borui/borui/internal/tunnel"
	"github.com/borui/borui/internal/webhook"
)

type File struct {
	Servers []Server `yaml:"servers"`
	Clients []Client `yaml:"clients"`
}

type Server struct {
	Name           string `yaml:"name"`
	Description    string `yaml:"description"`
	BindAddr       string `yaml:"bind_addr"`
	BindTunnels    string `yaml:"bind_tunnels"`
	ControlPort    int    `yaml:"control_port"`
	PortRangeStart int    `yaml:"port_range_start"`
	PortRangeEnd   int    `yaml:"port_range_end"`
	Secret         string `yaml:"secret"`
	AutoStart      bool   `yaml:"auto_start"`
}

type Client struct {
	Name            string `yaml:"name"`
	Description     string `yaml:"description"`
	LocalHost       string `yaml:"local_host"`
	LocalPort       int    `yaml:"local_port"`
	RemoteServer    string `yaml:"remote_server"`
	RemotePort      int    `yaml:"remote_port"`
	Secret          string `yaml:"secret"`
	AutoStart       bool   `yaml:"auto_start"`
	WebhookURL      string `yaml:"webhook_url"`
	WebhookFormat   string `yaml:"webhook_format"`
	WebhookTemplate string `yaml:"webhook_template"`
}

// Result counts what Apply changed.
type Result struct {
	Created int
	Updated int
}

// Load reads and parses a provision file. Unknown keys are rejected.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provision file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse provision file: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	seen := map[string]bool{}
	for i, s := range f.Servers {
		if s.Name == "" {
			return fmt.Errorf("servers[%d]: name is required", i)
		}
		if seen["s:"+s.Name] {
			return fmt.Errorf("servers[%d]: duplicate name %q", i, s.Name)
		}
		seen["s:"+s.Name] = true
	}
	for i, c := range f.Clients {
		if c.Name == "" {
			return fmt.Errorf("clients[%d]: name is required", i)
		}
		if seen["c:"+c.Name] {
			return fmt.Errorf("clients[%d]: duplicate name %q", i, c.Name)
		}
		seen["c:"+c.Name] = true
		if c.LocalPort < 1 || c.LocalPort > 65535 {
			return fmt.Errorf("clients[%d]: local_port %d out of range", i, c.LocalPort)
		}
		if c.RemoteServer == "" {
			return fmt.Errorf("clients[%d]: remote_server is required", i)
		}
		if c.WebhookURL != "" {
			if err := webhook.ValidateURL(c.WebhookURL); err != nil {
				return fmt.Errorf("clients[%d]: %w", i, err)
			}
		}
		switch c.WebhookFormat {
		case "", database.WebhookFormatJSON, database.WebhookFormatCustom:
		default:
			return fmt.Errorf("clients[%d]: unknown webhook_format %q", i, c.WebhookFormat)
		}
		if c.WebhookFormat == database.WebhookFormatCustom && c.WebhookTemplate == "" {
			return fmt.Errorf("clients[%d]: %w", i, webhook.ErrMissingTemplate)
		}
	}
	return nil
}

// Apply upserts every entry into the database.
func Apply(f *File) (Result, error) {
	var res Result
	for _, s := range f.Servers {
		created, err := applyServer(s)
		if err != nil {
			return res, fmt.Errorf("server %q: %w", s.Name, err)
		}
		res.count(created)
	}
	for _, c := range f.Clients {
		created, err := applyClient(c)
		if err != nil {
			return res, fmt.Errorf("client %q: %w", c.Name, err)
		}
		res.count(created)
	}
	log.Printf("[provision] %d created, %d updated", res.Created, res.Updated)
	return res, nil
}

func (r *Result) count(created bool) {
	if created {
		r.Created++
	} else {
		r.Updated++
	}
}

func applyServer(p Server) (bool, error) {
	rec, err := database.GetServerByName(p.Name)
	created := errors.Is(err, database.ErrNotFound)
	if err != nil && !created {
		return false, err
	}
	if created {
		rec = &database.Server{Name: p.Name, Status: database.StatusStopped}
	}

	secret, err := crypto.Encrypt(p.Secret)
	if err != nil {
		return false, err
	}
	rec.Description = p.Description
	rec.BindAddr = orDefault(p.BindAddr, "0.0.0.0")
	rec.BindTunnels = orDefault(p.BindTunnels, "0.0.0.0")
	rec.ControlPort = orDefaultInt(p.ControlPort, tunnel.DefaultControlPort)
	rec.PortRangeStart = orDefaultInt(p.PortRangeStart, 1024)
	rec.PortRangeEnd = orDefaultInt(p.PortRangeEnd, 65535)
	rec.Secret = secret
	rec.AutoStart = p.AutoStart

	if created {
		err = database.CreateServer(rec)
	} else {
		err = database.SaveServer(rec)
	}
	if err == nil {
		log.Printf("[provision] server %s applied", logutil.SanitizeForLog(p.Name))
	}
	return created, err
}

func applyClient(p Client) (bool, error) {
	rec, err := database.GetClientByName(p.Name)
	created := errors.Is(err, database.ErrNotFound)
	if err != nil && !created {
		return false, err
	}
	if created {
		rec = &database.Client{Name: p.Name, Status: database.StatusStopped}
	}

	secret, err := crypto.Encrypt(p.Secret)
	if err != nil {
		return false, err
	}
	rec.Description = p.Description
	rec.LocalHost = orDefault(p.LocalHost, "localhost")
	rec.LocalPort = p.LocalPort
	rec.RemoteServer = p.RemoteServer
	rec.RemotePort = p.RemotePort
	rec.Secret = secret
	rec.AutoStart = p.AutoStart
	rec.WebhookURL = p.WebhookURL
	rec.WebhookFormat = orDefault(p.WebhookFormat, database.WebhookFormatJSON)
	rec.WebhookTemplate = p.WebhookTemplate

	if created {
		err = database.CreateClient(rec)
	} else {
		err = database.SaveClient(rec)
	}
	if err == nil {
		log.Printf("[provision] client %s applied", logutil.SanitizeForLog(p.Name))
	}
	return created, err
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
