package domain

import (
	"fmt"
	"strings"
)

// TargetClass selects which probe set applies to a target.
type TargetClass string

const (
	ClassNode  TargetClass = "node"
	ClassProxy TargetClass = "proxy"
)

// Classes lists every known class in a stable order.
var Classes = []TargetClass{ClassNode, ClassProxy}

func (c TargetClass) Valid() bool {
	return c == ClassNode || c == ClassProxy
}

// ParseClass accepts "node"/"nodes" and "proxy"/"proxies", case-insensitive.
func ParseClass(s string) (TargetClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "node", "nodes":
		return ClassNode, nil
	case "proxy", "proxies":
		return ClassProxy, nil
	}
	return "", fmt.Errorf("unknown target class %q", s)
}

// Target is one host to probe. Identity is (Class, Address).
type Target struct {
	Class   TargetClass `json:"class"`
	Address string      `json:"address"`
}

func (t Target) String() string {
	return string(t.Class) + "/" + t.Address
}

// TargetList is the ordered set of targets for one class and one cycle.
type TargetList []Target

// NewTargetList builds a list of the given class from raw addresses, trimming
// whitespace and skipping blanks.
func NewTargetList(class TargetClass, addrs []string) TargetList {
	out := make(TargetList, 0, len(addrs))
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		out = append(out, Target{Class: class, Address: a})
	}
	return out
}

func (l TargetList) Addresses() []string {
	out := make([]string, len(l))
	for i, t := range l {
		out[i] = t.Address
	}
	return out
}
