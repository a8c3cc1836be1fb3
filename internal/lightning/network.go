package lightning

import (
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"github.com/rs/zerolog"

	k93slibvirt "github.com/jbweber/k93s/internal/libvirt"
)

// ensureNetwork defines, starts and autostarts the cluster network unless
// it is already active.
func ensureNetwork(lv libvirtClient, log zerolog.Logger) error {
	net, err := lv.NetworkLookupByName(NetworkName)
	if err != nil {
		if !hasErrorCode(err, libvirt.ErrNoNetwork) {
			return fmt.Errorf("failed to look up network %s: %w", NetworkName, err)
		}
		log.Info().Str("network", NetworkName).Str("cidr", NetworkCIDR).Msg("defining network")

		netXML, err := k93slibvirt.GenerateNetworkXML(k93slibvirt.NetworkParams{
			Name:   NetworkName,
			Bridge: NetworkBridge,
			CIDR:   NetworkCIDR,
		})
		if err != nil {
			return fmt.Errorf("failed to generate network XML: %w", err)
		}

		net, err = lv.NetworkDefineXML(netXML)
		if err != nil {
			return fmt.Errorf("failed to define network %s: %w", NetworkName, err)
		}
	}

	active, err := lv.NetworkIsActive(net)
	if err != nil {
		return fmt.Errorf("failed to check network %s: %w", NetworkName, err)
	}
	if active == 0 {
		if err := lv.NetworkCreate(net); err != nil {
			return fmt.Errorf("failed to start network %s: %w", NetworkName, err)
		}
	}

	if err := lv.NetworkSetAutostart(net, 1); err != nil {
		return fmt.Errorf("failed to set autostart on network %s: %w", NetworkName, err)
	}

	return nil
}
