// internal/compiler/fragment.go
package compiler

import (
	"github.com/solatis/ruleforge/internal/types"
)

/*
 * Code fragments and ownership conversion.
 *
 * A Fragment is the unit of compilation output: a Rust expression, its
 * static type, and whether the expression already yields an owned value.
 * Owned-mode compilation is defined as borrowed-mode compilation followed
 * by IntoOwned, so the ownership round-trip property (borrowed compile +
 * late conversion == owned compile) holds by construction.
 *
 * IntoOwned appends the per-kind conversion. For unknown types the generic
 * .to_owned() is the deliberate conservative fallback: always correct,
 * possibly a copy too many.
 */

// Fragment is a compiled Rust expression with its type and ownership.
type Fragment struct {
	Code  string
	Type  types.Type
	Owned bool
}

// IntoOwned converts the fragment so it carries no remaining borrow from
// its inputs. Boolean fragments are Copy and need no conversion; optional
// fragments convert their payload through the Option.
func (f Fragment) IntoOwned() Fragment {
	if f.Owned {
		return f
	}
	switch f.Type.Kind {
	case types.KindBool:
		// Copy type, dereferencing a copy rather than cloning.
	case types.KindString:
		if f.Type.Optional {
			f.Code += ".map(|v| v.to_string())"
		} else {
			f.Code += ".to_string()"
		}
	case types.KindStringArray:
		if f.Type.Optional {
			f.Code += ".map(|v| v.to_vec())"
		} else {
			f.Code += ".to_vec()"
		}
	case types.KindObject:
		if f.Type.Optional {
			f.Code += ".cloned()"
		} else {
			f.Code += ".clone()"
		}
	default:
		// No static type information: safe owned-copy fallback.
		f.Code += ".to_owned()"
	}
	f.Owned = true
	return f
}
