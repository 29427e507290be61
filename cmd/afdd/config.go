package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/afdist/afd/internal/afderr"
	"github.com/afdist/afd/internal/handling"
	"github.com/afdist/afd/internal/retrieve"
	"github.com/afdist/afd/internal/supervisor"
	"github.com/afdist/afd/internal/transfer"
)

// fileLayout is the on-disk shape of etc/afd_directories.json: the
// semantic content DIR_CONFIG/HOST_CONFIG would otherwise carry, without
// their line-oriented grammar (out of scope per this repo's own
// boundary — the handling and retrieval packages consume already-parsed
// Masks/Options either way).
type fileLayout struct {
	Hosts       []hostEntry `json:"hosts"`
	Directories []dirEntry  `json:"directories"`
}

type hostEntry struct {
	Alias    string `json:"alias"`
	Protocol string `json:"protocol"` // ftp | http | local
	Addr     string `json:"addr"`
	User     string `json:"user"`
	Password string `json:"password"`
	RemoteDir string `json:"remote_dir"`
	Passive  bool   `json:"passive"`
	BaseURL  string `json:"base_url"`
	Headers  map[string]string `json:"headers,omitempty"`
	DestDir  string `json:"dest_dir"`
}

type dirEntry struct {
	Alias      string   `json:"alias"`
	LocalDir   string   `json:"local_dir"`
	RemoteURL  string   `json:"remote_url,omitempty"`
	HostAlias  string   `json:"host_alias"`
	Masks      []string `json:"masks,omitempty"`
	Options    []string `json:"options,omitempty"`
	RescanTime string   `json:"rescan_time,omitempty"`
}

// loadLayout reads and builds the host/directory wiring for Start from
// path, dialing every FTP host up front so a bad credential fails fast at
// startup rather than on the first batch.
func loadLayout(ctx context.Context, path string) ([]supervisor.HostConfig, []supervisor.DirectoryJob, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, afderr.New(afderr.Filesystem, path, err)
	}

	var layout fileLayout
	if err := json.Unmarshal(data, &layout); err != nil {
		return nil, nil, afderr.New(afderr.Configuration, path, err)
	}

	hosts := make([]supervisor.HostConfig, 0, len(layout.Hosts))
	for _, h := range layout.Hosts {
		t, err := buildTransport(ctx, h)
		if err != nil {
			return nil, nil, fmt.Errorf("host %s: %w", h.Alias, err)
		}
		hosts = append(hosts, supervisor.HostConfig{Alias: h.Alias, Transport: t})
	}

	dirs := make([]supervisor.DirectoryJob, 0, len(layout.Directories))
	for _, d := range layout.Directories {
		masks := make([]retrieve.Mask, 0, len(d.Masks))
		for _, m := range d.Masks {
			inverse := false
			pattern := m
			if len(m) > 0 && m[0] == '!' {
				inverse = true
				pattern = m[1:]
			}
			masks = append(masks, retrieve.Mask{Pattern: pattern, Inverse: inverse})
		}
		options, err := handling.ParseOptions(d.Options)
		if err != nil {
			return nil, nil, fmt.Errorf("directory %s: %w", d.Alias, err)
		}
		var rescan time.Duration
		if d.RescanTime != "" {
			rescan, err = time.ParseDuration(d.RescanTime)
			if err != nil {
				return nil, nil, fmt.Errorf("directory %s: rescan_time: %w", d.Alias, err)
			}
		}
		dirs = append(dirs, supervisor.DirectoryJob{
			Alias:      d.Alias,
			LocalDir:   d.LocalDir,
			RemoteURL:  d.RemoteURL,
			HostAlias:  d.HostAlias,
			Masks:      masks,
			Options:    options,
			RescanTime: rescan,
		})
	}

	return hosts, dirs, nil
}

func buildTransport(ctx context.Context, h hostEntry) (transfer.Transport, error) {
	switch h.Protocol {
	case "ftp":
		return transfer.NewFTPTransport(ctx, transfer.FTPConfig{
			Addr:        h.Addr,
			User:        h.User,
			Password:    h.Password,
			RemoteDir:   h.RemoteDir,
			Passive:     h.Passive,
			DialTimeout: 30 * time.Second,
		})
	case "http":
		return transfer.NewHTTPTransport(transfer.HTTPConfig{
			BaseURL: h.BaseURL,
			Headers: h.Headers,
			Timeout: 60 * time.Second,
		}), nil
	case "local", "":
		return transfer.NewLocalTransport(h.DestDir)
	default:
		return nil, afderr.New(afderr.Configuration, h.Alias, fmt.Errorf("unknown transport protocol %q", h.Protocol))
	}
}
