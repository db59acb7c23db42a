package models

import (
	"fmt"
	"strings"
	"time"
)

type ResourceStatus string

const (
	ResourceAvailable   ResourceStatus = "available"
	ResourceInUse       ResourceStatus = "in-use"
	ResourceMaintenance ResourceStatus = "maintenance"
	ResourceReserved    ResourceStatus = "reserved"
)

// ParseResourceStatus normalizes a stored or user supplied status.
func ParseResourceStatus(raw string) (ResourceStatus, error) {
	switch s := ResourceStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case ResourceAvailable, ResourceInUse, ResourceMaintenance, ResourceReserved:
		return s, nil
	case "in_use", "inuse":
		return ResourceInUse, nil
	default:
		return "", fmt.Errorf("unknown resource status %q", raw)
	}
}

// Bookable reports whether new reservations may be placed on the resource.
func (s ResourceStatus) Bookable() bool {
	return s == ResourceAvailable
}

type Resource struct {
	ID          int64          `yaml:"id" json:"id"`
	Name        string         `yaml:"name" json:"name"`
	Category    string         `yaml:"category" json:"category"`
	Location    string         `yaml:"location" json:"location"`
	Capacity    int            `yaml:"capacity" json:"capacity"`
	Status      ResourceStatus `yaml:"status" json:"status"`
	Description string         `yaml:"description" json:"description,omitempty"`
	CreatedAt   time.Time      `yaml:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `yaml:"updated_at" json:"updated_at"`
}
