package models

import (
	"slices"
	"time"
)

// StoreVersion is the current version of the persisted profile store.
const StoreVersion = 3

// StoreData is the full persisted state of the profile store.
type StoreData struct {
	ActiveProfileID      string             `json:"activeProfileId"`
	Profiles             []Profile          `json:"profiles"`
	AccountPriorityOrder []AccountID        `json:"accountPriorityOrder,omitempty"`
	MigratedProfileIDs   []string           `json:"migratedProfileIds,omitempty"`
	AutoSwitch           AutoSwitchSettings `json:"autoSwitch"`
	Version              int                `json:"version"`
}

// DefaultStoreData returns the state of a fresh installation: a single default profile.
func DefaultStoreData(defaultConfigDir string, now time.Time) StoreData {
	return StoreData{
		Version: StoreVersion,
		Profiles: []Profile{{
			ID:          DefaultProfileID,
			Name:        "Default",
			Description: "Default Claude configuration",
			ConfigDir:   defaultConfigDir,
			IsDefault:   true,
			CreatedAt:   now,
		}},
		ActiveProfileID: DefaultProfileID,
		AutoSwitch:      DefaultAutoSwitchSettings(),
	}
}

// Clone returns a deep copy of the store data.
func (d *StoreData) Clone() StoreData {
	clone := *d
	clone.Profiles = make([]Profile, len(d.Profiles))
	for i := range d.Profiles {
		clone.Profiles[i] = d.Profiles[i].Clone()
	}
	clone.AccountPriorityOrder = slices.Clone(d.AccountPriorityOrder)
	clone.MigratedProfileIDs = slices.Clone(d.MigratedProfileIDs)
	return clone
}

// Find returns the index of the profile with id, or -1.
func (d *StoreData) Find(id string) int {
	for i := range d.Profiles {
		if d.Profiles[i].ID == id {
			return i
		}
	}
	return -1
}

// DefaultIndex returns the index of the default profile, or -1.
func (d *StoreData) DefaultIndex() int {
	for i := range d.Profiles {
		if d.Profiles[i].IsDefault {
			return i
		}
	}
	return -1
}
