package security

import "sync/atomic"

// PolicyStore holds the active validator. Reloads replace the whole validator
// so a concurrent Validate never sees a partially applied config.
type PolicyStore struct {
	current atomic.Pointer[PolicyValidator]
}

func NewPolicyStore(v *PolicyValidator) *PolicyStore {
	s := &PolicyStore{}
	s.current.Store(v)
	return s
}

func (s *PolicyStore) Load() *PolicyValidator {
	return s.current.Load()
}

// Swap builds a validator for cfg and makes it active. On error the previous
// validator stays in place.
func (s *PolicyStore) Swap(cfg PolicyConfig) error {
	v, err := NewPolicyValidator(cfg)
	if err != nil {
		return err
	}
	s.current.Store(v)
	return nil
}
