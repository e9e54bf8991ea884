package models

import "time"

// DoctorAvailability is a doctor's presence record: whether they accept
// consultations, what they treat, and how many active requests they carry.
// The record is keyed by username and is never hard-deleted; going offline
// only flips IsOnline.
type DoctorAvailability struct {
	DoctorUsername string    `json:"doctor_username"`
	IsOnline       bool      `json:"is_online"`
	Specialties    []string  `json:"specialties"`
	CurrentLoad    int       `json:"current_load"`
	LastSeen       time.Time `json:"last_seen"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate results without aliasing
// store-owned state.
func (d *DoctorAvailability) Clone() *DoctorAvailability {
	if d == nil {
		return nil
	}
	clone := *d
	clone.Specialties = append([]string(nil), d.Specialties...)
	return &clone
}

// MatchingSpecialties returns the intersection of the doctor's specialties
// with the preferred set, preserving the doctor's declared order.
func (d *DoctorAvailability) MatchingSpecialties(preferred []string) []string {
	if len(preferred) == 0 {
		return nil
	}
	wanted := make(map[string]struct{}, len(preferred))
	for _, s := range preferred {
		wanted[s] = struct{}{}
	}
	var matched []string
	for _, s := range d.Specialties {
		if _, ok := wanted[s]; ok {
			matched = append(matched, s)
		}
	}
	return matched
}

// HasAnySpecialty reports whether the doctor covers at least one of the
// preferred specialties. An empty preference matches every doctor.
func (d *DoctorAvailability) HasAnySpecialty(preferred []string) bool {
	if len(preferred) == 0 {
		return true
	}
	return len(d.MatchingSpecialties(preferred)) > 0
}

// Filters narrows an availability query. Specialty filtering happens
// in memory after the store query; stores only apply the load bound,
// ordering, and limit.
type Filters struct {
	Specialties []string
	MaxLoad     int
	Limit       int
}
