package lightning

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jbweber/k93s/internal/fleet"
	"github.com/jbweber/k93s/internal/metadata"
)

// AnsibleUser is the account Ansible logs into nodes with.
const AnsibleUser = "root"

// collectRecords reads the record of every fleet VM back from its domain.
// VMs without a domain are skipped; a domain without a record falls back to
// the planned one.
func collectRecords(lv libvirtClient, f fleet.Fleet, log zerolog.Logger) []fleet.Record {
	records := make([]fleet.Record, 0, len(f))
	for _, spec := range f {
		domain, err := lv.DomainLookupByName(spec.Name)
		if err != nil {
			if isNoDomain(err) {
				log.Warn().Str("vm", spec.Name).Msg("VM is not defined, leaving it out of the inventory")
			} else {
				log.Warn().Str("vm", spec.Name).Err(err).Msg("failed to look up VM, leaving it out of the inventory")
			}
			continue
		}

		rec, err := metadata.Load(lv, domain)
		if err != nil {
			log.Warn().Err(err).Str("vm", spec.Name).Msg("VM has no stored record, using the planned one")
			planned := fleet.NewRecord(spec)
			rec = &planned
		}
		records = append(records, *rec)
	}
	return records
}

// RenderInventory renders records as an Ansible INI inventory: one host line
// per record, then one section per group. The master and agent groups come
// first, any other group follows in name order.
func RenderInventory(records []fleet.Record) string {
	var b strings.Builder

	members := make(map[string][]string)
	for _, rec := range records {
		fmt.Fprintf(&b, "%s ansible_host=%s ansible_user=%s\n", rec.Name, rec.IPv4(), AnsibleUser)
		for _, group := range rec.Groups {
			members[group] = append(members[group], rec.Name)
		}
	}

	for _, group := range groupOrder(members) {
		fmt.Fprintf(&b, "\n[%s]\n", group)
		for _, name := range members[group] {
			b.WriteString(name + "\n")
		}
	}

	return b.String()
}

func groupOrder(members map[string][]string) []string {
	var order []string
	for _, role := range fleet.Roles() {
		if _, ok := members[role.Group()]; ok {
			order = append(order, role.Group())
		}
	}

	var extra []string
	for group := range members {
		if !isRoleGroup(group) {
			extra = append(extra, group)
		}
	}
	sort.Strings(extra)

	return append(order, extra...)
}

func isRoleGroup(group string) bool {
	for _, role := range fleet.Roles() {
		if role.Group() == group {
			return true
		}
	}
	return false
}
