package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"tmdbhelper/models"
)

// textSink prints a listing as aligned columns.
type textSink struct {
	tw    *tabwriter.Writer
	props int
}

func newTextSink(w io.Writer) *textSink {
	return &textSink{tw: tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)}
}

func (s *textSink) AddItem(url string, entry *models.ListingEntry, isFolder bool) error {
	kind := "item"
	if isFolder {
		kind = "folder"
	}
	played := ""
	if n := entry.Playcount(); n > 0 {
		played = "watched"
	} else if entry.Resume != nil {
		played = fmt.Sprintf("resume %ds", entry.Resume.Position)
	}
	_, err := fmt.Fprintf(s.tw, "%s\t%s\t%s\t%s\n", kind, entry.Label, played, url)
	return err
}

func (s *textSink) SetProperty(key, value string) error {
	s.props++
	return nil
}

func (s *textSink) Finish(updateListing bool, pluginCategory, containerContent string) error {
	if _, err := fmt.Fprintf(s.tw, "\n# %s (%s, %d properties)\n", pluginCategory, containerContent, s.props); err != nil {
		return err
	}
	return s.tw.Flush()
}
