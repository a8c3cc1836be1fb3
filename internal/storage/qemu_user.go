package storage

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/user"
	"strings"
	"sync"
)

const (
	qemuConfPath = "/etc/libvirt/qemu.conf"
	fallbackID   = "107"
)

var (
	qemuUID  string
	qemuGID  string
	qemuOnce sync.Once
	qemuErr  error
)

// GetQEMUUserGroup returns the UID and GID QEMU runs as, so pool
// directories and volumes are readable by the guests. It tries the user
// configured in qemu.conf, then the usual distro user names, then falls back
// to 107 and returns an error saying so. The result is cached.
func GetQEMUUserGroup() (uid, gid string, err error) {
	qemuOnce.Do(func() {
		qemuUID, qemuGID, qemuErr = resolveQEMUUserGroup(qemuConfPath, user.Lookup, user.LookupGroup)
	})
	return qemuUID, qemuGID, qemuErr
}

func resolveQEMUUserGroup(
	confPath string,
	lookupUser func(string) (*user.User, error),
	lookupGroup func(string) (*user.Group, error),
) (string, string, error) {
	username, groupname := "", ""
	if f, err := os.Open(confPath); err == nil {
		username, groupname = parseQEMUConf(f)
		_ = f.Close()
	}

	candidates := []string{"qemu", "libvirt-qemu"}
	if username != "" {
		candidates = append([]string{username}, candidates...)
	}

	for _, name := range candidates {
		u, err := lookupUser(name)
		if err != nil {
			continue
		}
		gid := u.Gid
		if groupname != "" && name == username {
			if g, err := lookupGroup(groupname); err == nil {
				gid = g.Gid
			}
		}
		return u.Uid, gid, nil
	}

	return fallbackID, fallbackID, fmt.Errorf("could not determine QEMU user/group, using fallback UID/GID %s", fallbackID)
}

// parseQEMUConf extracts the user and group settings from qemu.conf.
func parseQEMUConf(r io.Reader) (username, groupname string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		switch strings.TrimSpace(key) {
		case "user":
			username = value
		case "group":
			groupname = value
		}
	}
	return username, groupname
}
