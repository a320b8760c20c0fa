package trust

import (
	"errors"
	"fmt"
	"strings"
)

// UnknownTrustIDError is returned by a revoke or rotate mutation that
// names an id not present in the store.
type UnknownTrustIDError struct {
	ID string
}

func (e *UnknownTrustIDError) Error() string {
	return "trust: unknown trust id " + e.ID
}

// UsageError marks a malformed mutation spec string.
type UsageError struct {
	Spec   string
	Reason string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("trust: invalid mutation %q: %s", e.Spec, e.Reason)
}

// AddMutation upserts id with public_key and clears any revoked flag.
type AddMutation struct {
	ID        string
	PublicKey string
}

// RevokeMutation marks id revoked.
type RevokeMutation struct {
	ID string
}

// RotateMutation revokes OldID and inserts NewID carrying rotated_from.
type RotateMutation struct {
	OldID     string
	NewID     string
	PublicKey string
}

// Mutations is one applied batch, grouped by kind per spec §4.3.
type Mutations struct {
	Add    []AddMutation
	Revoke []RevokeMutation
	Rotate []RotateMutation
}

// ParseAddSpec parses "id=key".
func ParseAddSpec(spec string) (AddMutation, error) {
	id, key, ok := strings.Cut(spec, "=")
	if !ok || id == "" || key == "" {
		return AddMutation{}, &UsageError{Spec: spec, Reason: "expected id=key"}
	}
	return AddMutation{ID: id, PublicKey: key}, nil
}

// ParseRotateSpec parses "old_id:new_id=key".
func ParseRotateSpec(spec string) (RotateMutation, error) {
	idPart, key, ok := strings.Cut(spec, "=")
	if !ok || key == "" {
		return RotateMutation{}, &UsageError{Spec: spec, Reason: "expected old_id:new_id=key"}
	}
	oldID, newID, ok := strings.Cut(idPart, ":")
	if !ok || oldID == "" || newID == "" {
		return RotateMutation{}, &UsageError{Spec: spec, Reason: "expected old_id:new_id=key"}
	}
	return RotateMutation{OldID: oldID, NewID: newID, PublicKey: key}, nil
}

// ApplyMutations applies add, then revoke, then rotate mutations to s in
// that order so a single batch can, for example, add a replacement key
// and rotate the old one out in one call. A mutation naming an unknown id
// is skipped and its error recorded; the remaining mutations are still
// applied, and the recorded errors are returned joined. Mutations already
// applied are not rolled back (callers that need atomicity should operate
// on a copy and Save only on success).
func ApplyMutations(s *Store, m Mutations) error {
	var errs []error

	for _, a := range m.Add {
		existing, ok := s.Roots[a.ID]
		if ok {
			existing.PublicKey = a.PublicKey
			existing.Revoked = false
			s.Roots[a.ID] = existing
		} else {
			s.Roots[a.ID] = Root{ID: a.ID, PublicKey: a.PublicKey}
		}
	}

	for _, r := range m.Revoke {
		root, ok := s.Roots[r.ID]
		if !ok {
			errs = append(errs, &UnknownTrustIDError{ID: r.ID})
			continue
		}
		root.Revoked = true
		s.Roots[r.ID] = root
	}

	for _, rot := range m.Rotate {
		old, ok := s.Roots[rot.OldID]
		if !ok {
			errs = append(errs, &UnknownTrustIDError{ID: rot.OldID})
			continue
		}
		old.Revoked = true
		s.Roots[rot.OldID] = old
		s.Roots[rot.NewID] = Root{ID: rot.NewID, PublicKey: rot.PublicKey, RotatedFrom: rot.OldID}
	}

	return errors.Join(errs...)
}
