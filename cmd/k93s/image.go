package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jbweber/k93s/internal/config"
	"github.com/jbweber/k93s/internal/libvirt"
	"github.com/jbweber/k93s/internal/lightning"
	"github.com/jbweber/k93s/internal/storage"
)

var imageURI string

var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Manage the distro base images",
	Long: `List, download, import and remove the qcow2 base images node disks are
cloned from.

The libvirt URI comes from --uri, then from the cluster config's
libvirt_uri, then defaults to qemu:///system.`,
}

var imageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the imported distro images",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withImages(cmd.Context(), func(ctx context.Context, mgr *storage.Manager) error {
			layout := mgr.Layout()

			var pools []*storage.PoolInfo
			for _, name := range []string{layout.ImagesPool, layout.VMsPool} {
				info, err := mgr.GetPoolInfo(ctx, name)
				if err != nil {
					return err
				}
				pools = append(pools, info)
			}
			if err := writePoolSummary(os.Stdout, pools); err != nil {
				return err
			}
			fmt.Println()

			volumes, err := mgr.ListVolumes(ctx, layout.ImagesPool)
			if err != nil {
				return fmt.Errorf("failed to list images: %w", err)
			}
			if len(volumes) == 0 {
				fmt.Println("No images found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "NAME\tCAPACITY\tPATH")
			for _, v := range volumes {
				_, _ = fmt.Fprintf(w, "%s\t%.2f GB\t%s\n", v.Name, v.CapacityGB(), v.Path)
			}
			return w.Flush()
		})
	},
}

// writePoolSummary prints one line per pool with its state and free space.
func writePoolSummary(out io.Writer, pools []*storage.PoolInfo) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "POOL\tSTATE\tAVAILABLE\tPATH")
	for _, p := range pools {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.2f GB\t%s\n", p.Name, p.State, p.AvailableGB(), p.Path)
	}
	return w.Flush()
}

var imagePullCmd = &cobra.Command{
	Use:   "pull <distro>",
	Short: "Download a distro image from the image server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		distro := args[0]
		url := storage.ImageURL(a.settings.ImageBaseURL, distro)
		return withImages(cmd.Context(), func(ctx context.Context, mgr *storage.Manager) error {
			a.log.Info().Str("distro", distro).Str("url", url).Msg("downloading image")
			if err := mgr.PullImage(ctx, url, distro); err != nil {
				return err
			}
			fmt.Printf("✓ Image %s pulled\n", distro)
			return nil
		})
	},
}

var imageImportCmd = &cobra.Command{
	Use:   "import <path> <distro>",
	Short: "Import a local qcow2 file as a distro image",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, distro := args[0], args[1]
		return withImages(cmd.Context(), func(ctx context.Context, mgr *storage.Manager) error {
			if err := mgr.ImportImage(ctx, path, distro); err != nil {
				return err
			}
			fmt.Printf("✓ Image %s imported from %s\n", distro, path)
			return nil
		})
	},
}

var imageRmCmd = &cobra.Command{
	Use:     "rm <distro>",
	Aliases: []string{"remove", "delete"},
	Short:   "Remove a distro image",
	Long: `Remove a distro image. Disks already cloned from it keep working only if
libvirt still finds the backing file, so tear clusters down first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		distro := args[0]
		return withImages(cmd.Context(), func(ctx context.Context, mgr *storage.Manager) error {
			if err := mgr.DeleteImage(ctx, distro); err != nil {
				return err
			}
			fmt.Printf("✓ Image %s removed\n", distro)
			return nil
		})
	},
}

func init() {
	imageCmd.PersistentFlags().StringVar(&imageURI, "uri", "", "libvirt connection URI")
	imageCmd.AddCommand(imageListCmd, imagePullCmd, imageImportCmd, imageRmCmd)
}

// imageLibvirtURI picks the URI without requiring a cluster config.
func imageLibvirtURI() string {
	if imageURI != "" {
		return imageURI
	}
	path, err := a.configPath()
	if err != nil {
		return libvirt.DefaultURI
	}
	cfg, err := config.Load(path)
	if err != nil {
		return libvirt.DefaultURI
	}
	if uri, ok := cfg.BackendConfig.Get(lightning.KeyLibvirtURI); ok && uri != "" {
		return uri
	}
	return libvirt.DefaultURI
}

func withImages(ctx context.Context, fn func(context.Context, *storage.Manager) error) error {
	uri := imageLibvirtURI()
	a.log.Debug().Str("uri", uri).Msg("connecting to libvirt")

	client, err := libvirt.ConnectURI(ctx, uri, 0)
	if err != nil {
		return fmt.Errorf("failed to connect to libvirt: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close libvirt connection")
		}
	}()

	mgr := storage.NewManager(client.Libvirt())
	if err := mgr.EnsurePools(ctx); err != nil {
		return err
	}
	err = fn(ctx, mgr)
	if path := a.settings.MetricsFile; path != "" {
		if werr := a.metrics.WriteTextfile(path); werr != nil {
			a.log.Warn().Err(werr).Msg("failed to write metrics")
		}
	}
	return err
}
