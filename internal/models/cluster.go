package models

import (
	"strings"
	"time"
)

const haNameServicesKey = "dfs.nameservices"

type Cluster struct {
	ID               string            `json:"id" db:"id"`
	Name             string            `json:"name" db:"name" yaml:"name"`
	Description      string            `json:"description,omitempty" db:"description" yaml:"description"`
	FsEndpoint       string            `json:"fsEndpoint" db:"fs_endpoint" yaml:"fsEndpoint"`
	HsEndpoint       string            `json:"hsEndpoint,omitempty" db:"hs_endpoint" yaml:"hsEndpoint"`
	Local            bool              `json:"local" db:"local" yaml:"local"`
	Peers            []string          `json:"peers,omitempty" db:"peers" yaml:"peers"`
	Tags             []string          `json:"tags,omitempty" db:"tags" yaml:"tags"`
	CustomProperties map[string]string `json:"customProperties,omitempty" db:"custom_properties" yaml:"customProperties"`
	CreatedAt        time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time         `json:"updatedAt" db:"updated_at"`
}

// HighlyAvailable reports whether the cluster declares HA name services.
func (c Cluster) HighlyAvailable() bool {
	return strings.TrimSpace(c.CustomProperties[haNameServicesKey]) != ""
}

// HAConfigs returns the dfs.* and ha.* properties of an HA cluster, or nil.
func (c Cluster) HAConfigs() map[string]string {
	if !c.HighlyAvailable() {
		return nil
	}
	out := make(map[string]string)
	for k, v := range c.CustomProperties {
		if strings.HasPrefix(k, "dfs.") || strings.HasPrefix(k, "ha.") {
			out[k] = v
		}
	}
	return out
}
