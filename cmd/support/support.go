package support

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vantagesec/sentinel-go/internal/conf"
)

// Command creates the support command, which dumps the effective
// configuration and config search paths for troubleshooting.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "support",
		Short: "Print effective configuration for support requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := conf.GetDefaultConfigPaths()
			if err != nil {
				return err
			}
			fmt.Println("Config search paths:")
			for _, p := range paths {
				fmt.Println("  -", p)
			}

			fmt.Println("\nEffective configuration:")
			encoder := yaml.NewEncoder(os.Stdout)
			encoder.SetIndent(2)
			defer encoder.Close()
			return encoder.Encode(settings)
		},
	}
}
