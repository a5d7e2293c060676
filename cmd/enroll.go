package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/presence/internal/adapters/source"
	service "github.com/okian/presence/internal/app"
	"github.com/okian/presence/internal/domain/model"
)

func newEnrollCmd(c *cli) *cobra.Command {
	var id, name, imagePath string
	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Enroll one person from a photo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			img, err := source.ReadImage(imagePath)
			if err != nil {
				return fmt.Errorf("read %s: %w", imagePath, err)
			}
			svc, res, err := service.Build(ctx, *c.cfg)
			if err != nil {
				return err
			}
			defer res.Close()

			if err := svc.Enroll(ctx, model.Identity{ID: id, DisplayName: name}, img); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enrolled %s (%d gallery entries)\n", id, svc.Gallery().Len())
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "identity id")
	cmd.Flags().StringVar(&name, "name", "", "display name (defaults to the id)")
	cmd.Flags().StringVar(&imagePath, "image", "", "photo containing exactly one face")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

func newEnrollDirCmd(c *cli) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "enroll-dir",
		Short: "Enroll every <dir>/<identity_id>/*.jpg|png|bmp",
		Long: `enroll-dir walks one folder per identity. The folder name is the identity id;
an optional name.txt inside holds the display name.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, res, err := service.Build(ctx, *c.cfg)
			if err != nil {
				return err
			}
			defer res.Close()

			n, err := svc.EnrollDirectory(ctx, dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enrolled %d images (%d gallery entries)\n", n, svc.Gallery().Len())
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory with one folder per identity")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}
