package main

import "github.com/spf13/cobra"

var mainCMD = &cobra.Command{
	Use:   "georocket",
	Short: "Split and store large XML documents",
	Long:  "Splits large geospatial XML documents into first-level chunks and serves them for retrieval.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	mainCMD.AddCommand(serveCMD)
}

func main() {
	if err := mainCMD.Execute(); err != nil {
		panic(err)
	}
}
