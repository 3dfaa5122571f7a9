package main

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/colorfulnotion/regwin/common"
	"github.com/colorfulnotion/regwin/wvm/program"
	"github.com/spf13/cobra"
)

func (a *app) imageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "image",
		Short: "Manage the image store",
	}
	cmd.AddCommand(a.imagePutCmd(), a.imageGetCmd(), a.imageListCmd(), a.imageDeleteCmd())
	return cmd
}

func (a *app) imagePutCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "put <image>",
		Short: "Store an image file and print its hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, _, err := a.loadCode(args, "")
			if err != nil {
				return err
			}
			s, err := a.imageStore()
			if err != nil {
				return err
			}
			h, err := s.Put(name, code)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h.Hex())
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name to index the image under")
	return cmd
}

func (a *app) imageGetCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "get <hash|name>",
		Short: "Write a stored image back to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.imageStore()
			if err != nil {
				return err
			}
			_, rec, err := s.Resolve(args[0])
			if err != nil {
				return err
			}
			data := program.EncodeImage(rec.Words)
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(output, data, 0o644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination file, - for stdout")
	return cmd
}

func (a *app) imageListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.imageStore()
			if err != nil {
				return err
			}
			infos, err := s.List()
			if err != nil {
				return err
			}
			names, err := s.Names()
			if err != nil {
				return err
			}
			// a hash may be reachable under several names
			aliases := make(map[common.Hash][]string)
			for name, h := range names {
				aliases[h] = append(aliases[h], name)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "HASH\tNAMES\tWORDS\tENTRY\tCREATED")
			for _, info := range infos {
				list := aliases[info.Hash]
				slices.Sort(list)
				label := strings.Join(list, ",")
				if label == "" {
					label = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", info.Hash.String_short(), label, info.Words, info.Entry, info.Created.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
}

func (a *app) imageDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <hash|name>",
		Aliases: []string{"rm"},
		Short:   "Remove a stored image",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.imageStore()
			if err != nil {
				return err
			}
			h, _, err := s.Resolve(args[0])
			if err != nil {
				return err
			}
			return s.Delete(h)
		},
	}
}
