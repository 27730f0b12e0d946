package main

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	epub "github.com/simp-lee/epubingest"
)

var streamCmd = &cobra.Command{
	Use:   "stream <file.epub>",
	Short: "List chapters lazily from a memory-mapped file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		sr, err := epub.OpenStream(args[0], e.opts...)
		if err != nil {
			return err
		}
		defer sr.Close()

		ctx := cmd.Context()
		info, err := sr.Info(ctx)
		if err != nil {
			return err
		}
		cmd.Printf("%s (%s, %s)\n", info.Title, info.Version, humanize.IBytes(uint64(sr.Size())))

		n := 0
		for ch, err := range sr.Chapters(ctx) {
			if err != nil {
				return err
			}
			text, err := ch.Text()
			if err != nil {
				e.log.Warn("text extraction failed", "chapter", ch.ID, "error", err)
			}
			cmd.Printf("  %3d  %-40s %s words\n", ch.Order, truncate(ch.Title, 40), humanize.Comma(int64(wordCount(text))))
			n++
			if limit > 0 && n >= limit {
				break
			}
		}
		return nil
	},
}

func init() {
	streamCmd.Flags().Int("limit", 0, "Stop after this many chapters (0 for all)")
	rootCmd.AddCommand(streamCmd)
}

func wordCount(s string) int {
	n, inWord := 0, false
	for _, r := range s {
		space := r == ' ' || r == '\n' || r == '\t' || r == '\r'
		if !space && !inWord {
			n++
		}
		inWord = !space
	}
	return n
}
