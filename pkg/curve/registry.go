// SPDX-License-Identifier: Apache-2.0

package curve

import (
	"sort"
	"strings"
	"sync"

	"github.com/jllopis/arbiter/pkg/errors"
)

// InversePrefix turns any curve name into its inverse: "AntiX" samples as
// 1 - X(t) when no curve is registered under the prefixed name itself.
const InversePrefix = "Anti"

var builtins = map[string]Sampler{
	"ConstZero": Forward(Constant(0)),
	"ConstHalf": Forward(Constant(0.5)),
	"ConstMax":  Forward(Constant(1)),
	"AtLeast":   Forward(Binary),
	"LessThan":  Inverse(Binary),
	"Equals":    Forward(Mirror(Binary)),
	"NotEquals": Inverse(Mirror(Binary)),

	"Linear":                Forward(Linear),
	"AntiLinear":            Inverse(Linear),
	"Linear25%SoftLeak":     Forward(SoftLeak(Forward(Linear), 0.25)),
	"AntiLinear25%SoftLeak": Forward(SoftLeak(Inverse(Linear), 0.25)),
	"Square":                Forward(QuadraticIn),
	"AntiSquare":            Inverse(QuadraticIn),
	"Triangle":              Forward(Mirror(Linear)),
	"AntiTriangle":          Inverse(Mirror(Linear)),
	"QuadGauss":             Forward(Mirror(QuadraticInOut)),
	"AntiQuadGauss":         Inverse(Mirror(QuadraticInOut)),

	"QuadraticIn":      Forward(QuadraticIn),
	"QuadraticOut":     Forward(QuadraticOut),
	"QuadraticInOut":   Forward(QuadraticInOut),
	"CubicIn":          Forward(CubicIn),
	"CubicOut":         Forward(CubicOut),
	"CubicInOut":       Forward(CubicInOut),
	"QuarticIn":        Forward(QuarticIn),
	"QuarticOut":       Forward(QuarticOut),
	"QuarticInOut":     Forward(QuarticInOut),
	"QuinticIn":        Forward(QuinticIn),
	"QuinticOut":       Forward(QuinticOut),
	"QuinticInOut":     Forward(QuinticInOut),
	"SineIn":           Forward(SineIn),
	"SineOut":          Forward(SineOut),
	"SineInOut":        Forward(SineInOut),
	"CircularIn":       Forward(CircularIn),
	"CircularOut":      Forward(CircularOut),
	"CircularInOut":    Forward(CircularInOut),
	"ExponentialIn":    Forward(ExponentialIn),
	"ExponentialOut":   Forward(ExponentialOut),
	"ExponentialInOut": Forward(ExponentialInOut),
	"SmoothStep":       Forward(SmoothStep),
	"SmoothStepIn":     Forward(SmoothStepIn),
	"SmoothStepOut":    Forward(SmoothStepOut),
	"SmootherStep":     Forward(SmootherStep),
	"SmootherStepIn":   Forward(SmootherStepIn),
	"SmootherStepOut":  Forward(SmootherStepOut),
}

// Builtin resolves a built-in curve by name, including the Anti prefix.
func Builtin(name string) (Sampler, bool) {
	return resolve(name, func(n string) (Sampler, bool) {
		s, ok := builtins[n]
		return s, ok
	})
}

// BuiltinNames lists the explicitly named built-in curves in sorted order.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registry resolves curve names to samplers. Built-ins are always present;
// hosts add their own curves with Register.
type Registry struct {
	mu     sync.RWMutex
	custom map[string]Sampler
}

// NewRegistry creates a registry holding only the built-in curves.
func NewRegistry() *Registry {
	return &Registry{custom: make(map[string]Sampler)}
}

// Register adds a host curve under name. Names that are empty, already
// registered, or that shadow a built-in (directly or through the Anti
// prefix) are rejected with DUPLICATE_KEY or INVALID_INPUT.
func (r *Registry) Register(name string, c Curve) error {
	if strings.TrimSpace(name) == "" || c == nil {
		return errors.New(errors.CodeInvalidInput, "curve name and curve are required", nil)
	}
	if _, ok := Builtin(name); ok {
		return errors.New(errors.CodeDuplicateKey, "curve name shadows a built-in", nil).
			WithContext("curve", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.custom[name]; ok {
		return errors.New(errors.CodeDuplicateKey, "curve already registered", nil).
			WithContext("curve", name)
	}
	if s, ok := c.(Sampler); ok {
		r.custom[name] = s
	} else {
		r.custom[name] = Forward(c)
	}
	return nil
}

// Resolve looks up name among built-ins first, then host curves.
func (r *Registry) Resolve(name string) (Sampler, bool) {
	if s, ok := Builtin(name); ok {
		return s, true
	}
	if r == nil {
		return Sampler{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return resolve(name, func(n string) (Sampler, bool) {
		s, ok := r.custom[n]
		return s, ok
	})
}

// Names lists host-registered curve names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.custom))
	for name := range r.custom {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resolve(name string, lookup func(string) (Sampler, bool)) (Sampler, bool) {
	if s, ok := lookup(name); ok {
		return s, true
	}
	if base, ok := strings.CutPrefix(name, InversePrefix); ok && base != "" {
		if s, ok := lookup(base); ok {
			return s.Inverted(), true
		}
	}
	return Sampler{}, false
}
