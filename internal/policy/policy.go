package policy

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Delay bounds for webhook quarantine, in seconds.
const (
	MinActionDelay     = 5
	MaxActionDelay     = 3600
	DefaultActionDelay = 120
)

// DefaultProtectedRoles are the role names protected in a freshly created policy.
var DefaultProtectedRoles = []string{"Admin", "Administrator", "管理員"}

// Policy is the per-guild defense record. It is always accessed through a
// Store; callers must not keep one across a wait and expect it to be current.
type Policy struct {
	WebhookAllowlist      []string `json:"webhook_allowlist"`
	Blocklist             []string `json:"blocklist"`
	ProtectedRoles        []string `json:"protected_roles"`
	Operators             []string `json:"operators"`
	ActionDelaySeconds    int      `json:"action_delay_seconds"`
	NotificationChannelID string   `json:"notification_channel_id,omitempty"`
}

// Defaults describes the values a new guild policy starts with.
type Defaults struct {
	ActionDelaySeconds int
	ProtectedRoles     []string
}

// BuiltinDefaults returns the compiled-in defaults.
func BuiltinDefaults() Defaults {
	return Defaults{
		ActionDelaySeconds: DefaultActionDelay,
		ProtectedRoles:     slices.Clone(DefaultProtectedRoles),
	}
}

// New returns a policy populated from d.
func (d Defaults) New() *Policy {
	p := &Policy{
		WebhookAllowlist:   []string{},
		Blocklist:          []string{},
		ProtectedRoles:     slices.Clone(d.ProtectedRoles),
		Operators:          []string{},
		ActionDelaySeconds: d.ActionDelaySeconds,
	}
	p.Normalize()
	return p
}

// Default returns a policy with the built-in defaults.
func Default() *Policy {
	return BuiltinDefaults().New()
}

// Normalize enforces the record invariants: unique set members, non-nil
// sets and a delay within [MinActionDelay, MaxActionDelay].
func (p *Policy) Normalize() {
	p.WebhookAllowlist = dedup(p.WebhookAllowlist)
	p.Blocklist = dedup(p.Blocklist)
	p.ProtectedRoles = dedup(p.ProtectedRoles)
	p.Operators = dedup(p.Operators)
	p.ActionDelaySeconds = ClampDelay(p.ActionDelaySeconds)
}

// Clone returns a deep copy.
func (p *Policy) Clone() *Policy {
	c := *p
	c.WebhookAllowlist = slices.Clone(p.WebhookAllowlist)
	c.Blocklist = slices.Clone(p.Blocklist)
	c.ProtectedRoles = slices.Clone(p.ProtectedRoles)
	c.Operators = slices.Clone(p.Operators)
	return &c
}

// DelayValid reports whether seconds is an acceptable quarantine delay.
func DelayValid(seconds int) bool {
	return seconds >= MinActionDelay && seconds <= MaxActionDelay
}

// ClampDelay forces seconds into the allowed range. Zero (an absent key in an
// old document) maps to the default rather than the minimum.
func ClampDelay(seconds int) int {
	switch {
	case seconds == 0:
		return DefaultActionDelay
	case seconds < MinActionDelay:
		return MinActionDelay
	case seconds > MaxActionDelay:
		return MaxActionDelay
	}
	return seconds
}

// IsAllowlisted reports whether a webhook identifier is trusted.
func (p *Policy) IsAllowlisted(webhook string) bool {
	return slices.Contains(p.WebhookAllowlist, webhook)
}

// IsBlocked reports whether a user ID is on the blocklist.
func (p *Policy) IsBlocked(userID string) bool {
	return slices.Contains(p.Blocklist, userID)
}

// IsOperator reports whether a user ID may run defense commands.
func (p *Policy) IsOperator(userID string) bool {
	return slices.Contains(p.Operators, userID)
}

// IsProtected reports whether a role name is protected.
func (p *Policy) IsProtected(role string) bool {
	return slices.Contains(p.ProtectedRoles, role)
}

// Add inserts v into set and reports whether it was absent.
func Add(set *[]string, v string) bool {
	if slices.Contains(*set, v) {
		return false
	}
	*set = append(*set, v)
	return true
}

// Remove deletes v from set and reports whether it was present.
func Remove(set *[]string, v string) bool {
	i := slices.Index(*set, v)
	if i < 0 {
		return false
	}
	*set = slices.Delete(*set, i, i+1)
	return true
}

// Marshal encodes the policy document.
func (p *Policy) Marshal() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// Unmarshal decodes a policy document on top of d, so keys missing from the
// document keep their default value.
func Unmarshal(data []byte, d Defaults) (*Policy, error) {
	p := d.New()
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decoding policy: %w", err)
	}
	p.Normalize()
	return p, nil
}

func dedup(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
