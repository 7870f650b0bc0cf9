package main

import (
	"errors"
	"fmt"

	"tunebox/internal/library"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Add local audio files to the library",
	Long: `Run local audio files through the same validation, storage and metadata
pipeline as HTTP uploads. Each imported track is added to the Downloaded
playlist.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		failed := 0
		for _, path := range args {
			track, err := a.library.ImportFile(ctx, path)
			if err != nil {
				failed++
				var verr *library.ValidationError
				if errors.As(err, &verr) {
					a.logger.WithFields(logrus.Fields{
						"file": path,
						"code": verr.Code,
					}).Warn(verr.Message)
					continue
				}
				a.logger.WithError(err).WithField("file", path).Error("Import failed")
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s - %s\t%s\n", track.ID, track.Artist, track.Title, track.Filename)
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d files could not be imported", failed, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
