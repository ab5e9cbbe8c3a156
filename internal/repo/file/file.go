// Package file reads target lists from local files on every call, so edits
// take effect on the next cycle without a restart.
package file

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hamed0406/fleethealth/internal/domain"
	"github.com/hamed0406/fleethealth/internal/repo"
)

// List is a plain list: one address per line, blank lines and lines starting
// with '#' ignored. Only the first field of a line is used.
type List struct {
	Class domain.TargetClass
	Path  string
}

func NewList(class domain.TargetClass, path string) *List {
	return &List{Class: class, Path: path}
}

func (l *List) Targets(ctx context.Context) (domain.TargetList, error) {
	f, err := os.Open(l.Path)
	if err != nil {
		return nil, fmt.Errorf("open target list: %w", err)
	}
	defer f.Close()

	addrs, err := parseList(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", l.Path, err)
	}
	return domain.NewTargetList(l.Class, addrs), nil
}

func parseList(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, strings.Fields(line)[0])
	}
	return out, sc.Err()
}

// Inventory reads an Ansible INI inventory. Each host line contributes its
// ansible_host= value, or the host name when that is absent. When Group is
// set only hosts under [Group] are used.
type Inventory struct {
	Class domain.TargetClass
	Path  string
	Group string
}

func NewInventory(class domain.TargetClass, path, group string) *Inventory {
	return &Inventory{Class: class, Path: path, Group: group}
}

func (inv *Inventory) Targets(ctx context.Context) (domain.TargetList, error) {
	f, err := os.Open(inv.Path)
	if err != nil {
		return nil, fmt.Errorf("open inventory: %w", err)
	}
	defer f.Close()

	addrs, err := parseInventory(f, inv.Group)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", inv.Path, err)
	}
	return domain.NewTargetList(inv.Class, addrs), nil
}

func parseInventory(r io.Reader, group string) ([]string, error) {
	var (
		out     []string
		seen    = map[string]bool{}
		current string
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' || line[0] == ';' {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			current = strings.TrimSpace(line[1 : len(line)-1])
			continue
		}
		// [x:vars] and [x:children] sections hold no hosts
		if strings.Contains(current, ":") {
			continue
		}
		if group != "" && current != group {
			continue
		}

		fields := strings.Fields(line)
		addr := fields[0]
		for _, kv := range fields[1:] {
			if v, ok := strings.CutPrefix(kv, "ansible_host="); ok {
				addr = strings.Trim(v, `"'`)
			}
		}
		if !seen[addr] {
			seen[addr] = true
			out = append(out, addr)
		}
	}
	return out, sc.Err()
}

var (
	_ repo.TargetSource = (*List)(nil)
	_ repo.TargetSource = (*Inventory)(nil)
)
