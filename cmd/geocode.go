package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/familyhub/centres-api/pkg/geocode"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode <address>",
	Short: "Geocode an address with the configured provider",
	Long: "Prints latitude,longitude, the provider's formatted address and the " +
		"match quality (rooftop, range, centroid or approximate), tab separated.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("geocode"); err != nil {
			return err
		}

		address := strings.Join(args, " ")
		result, err := newGeocoder(cfg.Geocode).Geocode(cmd.Context(), address)
		if err != nil {
			if geocode.IsFailure(err) {
				return eris.Wrapf(err, "no match for %q", address)
			}
			return eris.Wrap(err, "geocode")
		}

		zap.L().Debug("address geocoded",
			zap.String("address", address),
			zap.String("quality", result.Quality),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "%.7f,%.7f\t%s\t%s\n",
			result.Lat, result.Lng, result.FormattedAddress, result.Quality)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(geocodeCmd)
}
