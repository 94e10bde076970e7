package cachesync

import (
	"encoding/json"
	"fmt"

	"github.com/luciancaetano/luster"
)

// Removed-field labels sent in the clear list of update events. Names not
// listed here are treated as wire field names.
var (
	userClears = map[string]func(*luster.User){
		"Avatar": func(u *luster.User) { u.Avatar = nil },
		"StatusText": func(u *luster.User) {
			if u.Status != nil {
				u.Status.Text = ""
			}
		},
		"StatusPresence": func(u *luster.User) {
			if u.Status != nil {
				u.Status.Presence = ""
			}
		},
		"ProfileContent": func(u *luster.User) {
			if u.Profile != nil {
				u.Profile.Content = ""
			}
		},
		"ProfileBackground": func(u *luster.User) {
			if u.Profile != nil {
				u.Profile.Background = nil
			}
		},
		"DisplayName": func(u *luster.User) { u.DisplayName = "" },
	}

	serverClears = map[string]func(*luster.Server){
		"Description":    func(s *luster.Server) { s.Description = "" },
		"Categories":     func(s *luster.Server) { s.Categories = nil },
		"SystemMessages": func(s *luster.Server) { s.SystemMessages = nil },
		"Icon":           func(s *luster.Server) { s.Icon = nil },
		"Banner":         func(s *luster.Server) { s.Banner = nil },
	}

	channelClears = map[string]func(*luster.Channel){
		"Description":        func(c *luster.Channel) { c.Description = "" },
		"Icon":               func(c *luster.Channel) { c.Icon = nil },
		"DefaultPermissions": func(c *luster.Channel) { c.DefaultPermissions = nil },
	}

	roleClears = map[string]func(*luster.Role){
		"Colour": func(r *luster.Role) { r.Colour = "" },
	}
)

// update returns a fresh copy of current with patch merged in field by
// field, then every field named in clear reset. Top-level fields present in
// patch replace the cached value wholesale; absent fields keep it. Clearing
// runs last, so a field both patched and cleared ends up cleared.
//
// current is never modified: listeners may still hold it.
func update[T any](current *T, patch luster.Patch, clear []string, labels map[string]func(*T)) (*T, error) {
	var (
		drop   []string
		resets []func(*T)
	)
	for _, name := range clear {
		if reset, ok := labels[name]; ok {
			resets = append(resets, reset)
		} else {
			drop = append(drop, name)
		}
	}

	out, err := merge(current, patch, drop)
	if err != nil {
		return nil, err
	}
	for _, reset := range resets {
		reset(out)
	}
	return out, nil
}

// merge works on the wire representation: encode current, overlay patch
// keys, remove drop keys and decode into a zero value. Decoding into a
// fresh value is what makes the result share nothing with current.
func merge[T any](current *T, patch luster.Patch, drop []string) (*T, error) {
	data, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("encode cached entity: %w", err)
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode cached entity: %w", err)
	}

	for key, value := range patch {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode patch field %s: %w", key, err)
		}
		fields[key] = raw
	}
	for _, key := range drop {
		delete(fields, key)
	}

	data, err = json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode patched entity: %w", err)
	}

	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode patched entity: %w", err)
	}
	return &out, nil
}
