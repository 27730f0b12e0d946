package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	epub "github.com/simp-lee/epubingest"
)

var parseCmd = &cobra.Command{
	Use:   "parse <file.epub>",
	Short: "Print the metadata and chapter list of a book",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(cmd)
		if err != nil {
			return err
		}
		book, err := epub.Open(cmd.Context(), args[0], e.opts...)
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return writeBookJSON(cmd.OutOrStdout(), book)
		}
		printBook(cmd, book)
		return nil
	},
}

func init() {
	parseCmd.Flags().Bool("json", false, "Print the result as JSON")
	rootCmd.AddCommand(parseCmd)
}

type bookSummary struct {
	ID          string            `json:"id"`
	Version     string            `json:"version"`
	Title       string            `json:"title"`
	Alternate   []string          `json:"alternateTitles,omitempty"`
	Authors     []epub.Author     `json:"authors"`
	Language    string            `json:"language"`
	Identifiers []epub.Identifier `json:"identifiers,omitempty"`
	Chapters    []chapterSummary  `json:"chapters"`
	Omissions   []epub.Omission   `json:"omissions,omitempty"`
	Cover       string            `json:"cover,omitempty"`
	TOCEntries  int               `json:"tocEntries"`
}

type chapterSummary struct {
	Order int    `json:"order"`
	ID    string `json:"id"`
	Title string `json:"title"`
	Href  string `json:"href"`
	Bytes int    `json:"bytes"`
}

func summarize(book *epub.Book) bookSummary {
	s := bookSummary{
		ID:          book.ID().String(),
		Version:     book.Version().String(),
		Title:       book.Title(),
		Alternate:   book.AlternateTitles(),
		Authors:     book.Authors(),
		Language:    book.Language().Code(),
		Identifiers: book.Identifiers(),
		Omissions:   book.Omissions(),
	}
	for _, ch := range book.Chapters() {
		s.Chapters = append(s.Chapters, chapterSummary{
			Order: ch.Order, ID: ch.ID, Title: ch.Title, Href: ch.Href, Bytes: len(ch.Content),
		})
	}
	if rc, ok := book.Resources(); ok {
		s.Cover = rc.Cover
	}
	if nav, ok := book.Navigation(); ok {
		s.TOCEntries = len(nav.TOC)
	}
	return s
}

func writeBookJSON(w io.Writer, book *epub.Book) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summarize(book))
}

func printBook(cmd *cobra.Command, book *epub.Book) {
	s := summarize(book)
	cmd.Printf("Title:    %s\n", s.Title)
	for _, a := range s.Authors {
		if a.Role != "" {
			cmd.Printf("Author:   %s (%s)\n", a.Name, a.Role)
		} else {
			cmd.Printf("Author:   %s\n", a.Name)
		}
	}
	cmd.Printf("Language: %s\n", s.Language)
	cmd.Printf("Version:  %s\n", s.Version)
	cmd.Printf("ID:       %s\n", s.ID)
	if s.Cover != "" {
		cmd.Printf("Cover:    %s\n", s.Cover)
	}
	cmd.Printf("\n%d chapters:\n", len(s.Chapters))
	for _, ch := range s.Chapters {
		cmd.Printf("  %3d  %-40s %s\n", ch.Order, truncate(ch.Title, 40), ch.Href)
	}
	if len(s.Omissions) > 0 {
		cmd.Printf("\n%d skipped:\n", len(s.Omissions))
		for _, o := range s.Omissions {
			cmd.Printf("  %s %s: %s\n", o.Reason, o.Href, o.Detail)
		}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return fmt.Sprintf("%s…", string(r[:n-1]))
}
