package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docchat/internal/embed"
	"github.com/Aman-CERP/docchat/internal/index"
	"github.com/Aman-CERP/docchat/pkg/version"
)

// versionInfo adds the on-disk and embedding capabilities of this binary to
// the build information.
type versionInfo struct {
	version.BuildInfo
	IndexFormat int  `json:"index_format"`
	FastEmbed   bool `json:"fastembed"`
}

func newVersionCmd() *cobra.Command {
	var jsonOutput, shortOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print the docchat version, build details, the index format this binary
reads and writes, and whether local fastembed models are available.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			switch {
			case shortOutput:
				_, err := fmt.Fprintln(w, version.Short())
				return err
			case jsonOutput:
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(versionInfo{
					BuildInfo:   version.GetInfo(),
					IndexFormat: index.FormatVersion,
					FastEmbed:   embed.FastEmbedBuilt,
				})
			}

			embeddings := "fastembed, ollama, static"
			if !embed.FastEmbedBuilt {
				embeddings = "ollama, static (built without cgo)"
			}
			_, err := fmt.Fprintf(w, "%s\nindex format: %d\nembeddings:   %s\n",
				version.String(), index.FormatVersion, embeddings)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	cmd.Flags().BoolVar(&shortOutput, "short", false, "Output only the version number")
	return cmd
}
