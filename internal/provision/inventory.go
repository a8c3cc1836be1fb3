package provision

import (
	"bufio"
	"fmt"
	"strings"
)

// Host is one host line of an Ansible INI inventory.
type Host struct {
	Name    string
	Address string
	User    string
}

// Inventory is a parsed Ansible INI inventory.
type Inventory struct {
	Hosts  map[string]Host
	Groups map[string][]string
}

// ParseInventory reads the host lines and group sections of an INI
// inventory. Host variables other than ansible_host and ansible_user are
// ignored.
func ParseInventory(text string) (*Inventory, error) {
	inv := &Inventory{Hosts: make(map[string]Host), Groups: make(map[string][]string)}

	group := ""
	scanner := bufio.NewScanner(strings.NewReader(text))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, fmt.Errorf("line %d: unterminated group header", lineNo)
			}
			group = strings.TrimSpace(line[1 : len(line)-1])
			if _, ok := inv.Groups[group]; !ok {
				inv.Groups[group] = nil
			}
			continue
		}

		fields := strings.Fields(line)
		name := fields[0]
		host, ok := inv.Hosts[name]
		if !ok {
			host = Host{Name: name, Address: name}
		}
		for _, field := range fields[1:] {
			key, val, found := strings.Cut(field, "=")
			if !found {
				return nil, fmt.Errorf("line %d: malformed host variable %q", lineNo, field)
			}
			switch key {
			case "ansible_host":
				host.Address = val
			case "ansible_user":
				host.User = val
			}
		}
		inv.Hosts[name] = host

		if group != "" {
			inv.Groups[group] = append(inv.Groups[group], name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}

	return inv, nil
}

// First returns the first host of group.
func (inv *Inventory) First(group string) (Host, error) {
	members := inv.Groups[group]
	if len(members) == 0 {
		return Host{}, fmt.Errorf("inventory group %s has no hosts", group)
	}
	return inv.Hosts[members[0]], nil
}
