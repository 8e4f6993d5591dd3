// Package assert provides small named conditions that aggregates check
// before raising events.
package assert

import (
	"errors"
	"fmt"
	"strings"
)

var ErrFailed = errors.New("assertion failed")

type Func func() error
type CondFunc func() bool

type Cond interface {
	String() string
	Eval() bool
	Check() error
}

type cond struct {
	name  string
	cond  CondFunc
	check func() error
}

func (c *cond) Check() error   { return c.check() }
func (c *cond) String() string { return c.name }
func (c *cond) Eval() bool     { return c.cond() }

func newCond(name string, condFn CondFunc) *cond {
	return &cond{name: name, cond: condFn, check: func() error {
		if !condFn() {
			return fmt.Errorf("%w: %s", ErrFailed, name)
		}
		return nil
	}}
}

func Not(c Cond) Cond {
	return newCond(fmt.Sprintf("not(%s)", c.String()), func() bool { return !c.Eval() })
}
func True(v bool, name string) Cond  { return newCond(name, func() bool { return v }) }
func False(v bool, name string) Cond { return newCond(name, func() bool { return !v }) }

// NotEmpty holds when s contains something other than whitespace.
func NotEmpty(s, name string) Cond {
	return newCond(name, func() bool { return strings.TrimSpace(s) != "" })
}

// MaxLen holds when s has at most n runes.
func MaxLen(s string, n int, name string) Cond {
	return newCond(name, func() bool { return len([]rune(s)) <= n })
}

// All holds when every c holds. Check reports the first failing condition.
func All(cs ...Cond) Cond {
	names := make([]string, 0, len(cs))
	for _, c := range cs {
		names = append(names, c.String())
	}
	all := newCond(strings.Join(names, " && "), func() bool {
		for _, c := range cs {
			if !c.Eval() {
				return false
			}
		}
		return true
	})

	all.check = func() error {
		for _, c := range cs {
			if err := c.Check(); err != nil {
				return err
			}
		}
		return nil
	}

	return all
}

// Because makes a failing c report err instead of ErrFailed.
func Because(err error, c Cond) Cond {
	return &cond{name: c.String(), cond: c.Eval, check: func() error {
		if !c.Eval() {
			return fmt.Errorf("%w: %s", err, c.String())
		}
		return nil
	}}
}

func Assert(cond ...Cond) Func {
	return All(cond...).Check
}
