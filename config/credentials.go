package config

import (
	"strings"

	"github.com/awnumar/memguard"
)

const redacted = "[REDACTED]"

// Credentials holds the portal and qBittorrent secrets in locked, guarded
// memory for the lifetime of a run.
type Credentials struct {
	PortalUsername      *memguard.LockedBuffer
	PortalPassword      *memguard.LockedBuffer
	QBittorrentUsername *memguard.LockedBuffer
	QBittorrentPassword *memguard.LockedBuffer
}

func newCredentials(portalUser, portalPass, qbtUser, qbtPass string) *Credentials {
	return &Credentials{
		PortalUsername:      memguard.NewBufferFromBytes([]byte(portalUser)),
		PortalPassword:      memguard.NewBufferFromBytes([]byte(portalPass)),
		QBittorrentUsername: memguard.NewBufferFromBytes([]byte(qbtUser)),
		QBittorrentPassword: memguard.NewBufferFromBytes([]byte(qbtPass)),
	}
}

func (c *Credentials) buffers() []*memguard.LockedBuffer {
	return []*memguard.LockedBuffer{c.PortalUsername, c.PortalPassword, c.QBittorrentUsername, c.QBittorrentPassword}
}

// Redact replaces every secret value found in s.
func (c *Credentials) Redact(s string) string {
	if c == nil {
		return s
	}
	for _, b := range c.buffers() {
		if b == nil || !b.IsAlive() || b.Size() == 0 {
			continue
		}
		s = strings.ReplaceAll(s, b.String(), redacted)
	}
	return s
}

// Destroy wipes all secrets. Safe to call more than once.
func (c *Credentials) Destroy() {
	if c == nil {
		return
	}
	for _, b := range c.buffers() {
		if b != nil {
			b.Destroy()
		}
	}
}
