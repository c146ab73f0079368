package models

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Media types as stored in the "mediatype" info label.
const (
	MediaTypeMovie   = "movie"
	MediaTypeTVShow  = "tvshow"
	MediaTypeSeason  = "season"
	MediaTypeEpisode = "episode"
	MediaTypeSet     = "set"
)

// PluginBase prefixes every listing URL.
var PluginBase = "plugin://plugin.video.themoviedb.helper/"

// Descriptor is one raw item as returned by a list route, before it is resolved
// into a ListingEntry. Its position in the requested slice is its listing position.
type Descriptor struct {
	Label          string            `json:"label,omitempty"`
	Params         map[string]string `json:"params,omitempty"`
	InfoLabels     map[string]any    `json:"infolabels,omitempty"`
	InfoProperties map[string]string `json:"infoproperties,omitempty"`
	Art            map[string]string `json:"art,omitempty"`
	UniqueIDs      map[string]string `json:"unique_ids,omitempty"`
	NextPage       bool              `json:"next_page,omitempty"`
}

// Param returns a request parameter or "".
func (d Descriptor) Param(key string) string {
	if d.Params == nil {
		return ""
	}
	return d.Params[key]
}

// ContextItem is one context menu action attached to an entry.
type ContextItem struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

// ResumePoint is the playback position written back for partially watched items.
type ResumePoint struct {
	Position int `json:"position"` // seconds
	Total    int `json:"total"`    // seconds
}

// Details are the fields merged into an entry from a provider or the local library.
type Details struct {
	InfoLabels     map[string]any
	InfoProperties map[string]string
	Art            map[string]string
	UniqueIDs      map[string]string
}

// ListingEntry is a fully resolved, display-ready media item.
type ListingEntry struct {
	Label          string            `json:"label"`
	Label2         string            `json:"label2,omitempty"`
	UniqueIDs      map[string]string `json:"unique_ids"`
	InfoLabels     map[string]any    `json:"infolabels"`
	InfoProperties map[string]string `json:"infoproperties"`
	Art            map[string]string `json:"art"`
	Params         map[string]string `json:"params"`
	ContextMenu    []ContextItem     `json:"context_menu,omitempty"`
	Resume         *ResumePoint      `json:"resume,omitempty"`
	NextPage       bool              `json:"next_page,omitempty"`
	IsFolder       bool              `json:"is_folder"`
}

// NewListingEntry builds an entry seeded from a descriptor. Maps are copied so the
// descriptor stays untouched.
func NewListingEntry(d Descriptor) *ListingEntry {
	e := &ListingEntry{
		Label:          d.Label,
		UniqueIDs:      copyStrings(d.UniqueIDs),
		InfoLabels:     make(map[string]any, len(d.InfoLabels)),
		InfoProperties: copyStrings(d.InfoProperties),
		Art:            copyStrings(d.Art),
		Params:         copyStrings(d.Params),
		NextPage:       d.NextPage,
		IsFolder:       true,
	}
	for k, v := range d.InfoLabels {
		e.InfoLabels[k] = v
	}
	return e
}

func copyStrings(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (e *ListingEntry) MediaType() string { return cast.ToString(e.InfoLabels["mediatype"]) }
func (e *ListingEntry) Season() int       { return cast.ToInt(e.InfoLabels["season"]) }
func (e *ListingEntry) Episode() int      { return cast.ToInt(e.InfoLabels["episode"]) }
func (e *ListingEntry) Duration() int     { return cast.ToInt(e.InfoLabels["duration"]) }
func (e *ListingEntry) Playcount() int    { return cast.ToInt(e.InfoLabels["playcount"]) }

// Label value lookup used by filters: a non-empty info label, then the
// property of the same name.
func (e *ListingEntry) Field(key string) (string, bool) {
	label, hasLabel := e.InfoLabels[key]
	if s := cast.ToString(label); s != "" {
		return s, true
	}
	if v, ok := e.InfoProperties[key]; ok {
		return v, true
	}
	return "", hasLabel
}

// SetEpisodeLabel prefixes episode labels with their season/episode code.
func (e *ListingEntry) SetEpisodeLabel() {
	if e.MediaType() != MediaTypeEpisode || e.NextPage {
		return
	}
	season, episode := e.Season(), e.Episode()
	if episode == 0 {
		return
	}
	prefix := fmt.Sprintf("%dx%02d. ", season, episode)
	if strings.HasPrefix(e.Label, prefix) {
		return
	}
	e.Label = prefix + e.Label
}

// IsUnaired reports whether the premiere date lies after now. A missing or
// unparsable date counts as unaired only when noDate is set.
func (e *ListingEntry) IsUnaired(noDate bool, now time.Time) bool {
	switch e.MediaType() {
	case MediaTypeMovie, MediaTypeTVShow, MediaTypeSeason, MediaTypeEpisode:
	default:
		return false
	}
	premiered := cast.ToString(e.InfoLabels["premiered"])
	if premiered == "" {
		return noDate
	}
	if len(premiered) > 10 {
		premiered = premiered[:10]
	}
	date, err := time.Parse("2006-01-02", premiered)
	if err != nil {
		return noDate
	}
	return date.After(now)
}

// SetDetails merges local library details. With reverse set, values already on
// the entry win and details only fill gaps.
func (e *ListingEntry) SetDetails(d *Details, reverse bool) {
	if d == nil {
		return
	}
	for k, v := range d.InfoLabels {
		if _, exists := e.InfoLabels[k]; reverse && exists {
			continue
		}
		e.InfoLabels[k] = v
	}
	mergeStrings(e.InfoProperties, d.InfoProperties, reverse)
	mergeStrings(e.Art, d.Art, reverse)
	mergeStrings(e.UniqueIDs, d.UniqueIDs, reverse)
}

func mergeStrings(dst, src map[string]string, reverse bool) {
	for k, v := range src {
		if v == "" {
			continue
		}
		if _, exists := dst[k]; reverse && exists && dst[k] != "" {
			continue
		}
		dst[k] = v
	}
}

// SetPlaycount applies a watched count. For movies and episodes it is the play
// count; for shows and seasons it is the number of watched episodes, compared
// against the aired count held in the "episode" label.
func (e *ListingEntry) SetPlaycount(playcount *int) {
	if playcount == nil {
		return
	}
	n := *playcount
	switch e.MediaType() {
	case MediaTypeMovie, MediaTypeEpisode:
		e.InfoLabels["playcount"] = n
		if n > 0 {
			e.InfoLabels["overlay"] = 5
		}
	case MediaTypeTVShow, MediaTypeSeason:
		aired := e.Episode()
		if aired == 0 {
			return
		}
		if n > aired {
			n = aired
		}
		e.InfoProperties["watchedepisodes"] = cast.ToString(n)
		e.InfoProperties["unwatchedepisodes"] = cast.ToString(aired - n)
		e.InfoProperties["watchedprogress"] = cast.ToString(n * 100 / aired)
		if n >= aired {
			e.InfoLabels["playcount"] = 1
			e.InfoLabels["overlay"] = 5
		} else {
			e.InfoLabels["playcount"] = 0
		}
	}
}

// SetContextMenu attaches the standard context actions.
func (e *ListingEntry) SetContextMenu() {
	if e.NextPage {
		return
	}
	tmdbID := e.UniqueIDs["tmdb"]
	if tmdbID == "" {
		return
	}
	tmdbType := e.Params["tmdb_type"]
	related := url.Values{"info": {"related"}, "tmdb_type": {tmdbType}, "tmdb_id": {tmdbID}}
	e.ContextMenu = append(e.ContextMenu[:0], ContextItem{
		Label:  "Related lists",
		Action: PluginBase + "?" + related.Encode(),
	})
	switch e.MediaType() {
	case MediaTypeMovie, MediaTypeEpisode, MediaTypeTVShow, MediaTypeSeason:
		sync := url.Values{"info": {"trakt_sync"}, "tmdb_type": {tmdbType}, "tmdb_id": {tmdbID}}
		if s := e.Params["season"]; s != "" {
			sync.Set("season", s)
		}
		if ep := e.Params["episode"]; ep != "" {
			sync.Set("episode", ep)
		}
		e.ContextMenu = append(e.ContextMenu, ContextItem{
			Label:  "Trakt options",
			Action: PluginBase + "?" + sync.Encode(),
		})
	}
}

// SetUIDsToInfo mirrors unique ids into properties as <provider>_id.
func (e *ListingEntry) SetUIDsToInfo() {
	for k, v := range e.UniqueIDs {
		if v == "" {
			continue
		}
		e.InfoProperties[k+"_id"] = v
	}
}

// SetThumbToArt replaces the thumbnail with fanart, or with landscape art first
// when preferLandscape is set.
func (e *ListingEntry) SetThumbToArt(preferLandscape bool) {
	thumb := e.Art["fanart"]
	if preferLandscape && e.Art["landscape"] != "" {
		thumb = e.Art["landscape"]
	}
	if thumb == "" {
		return
	}
	e.Art["thumb"] = thumb
}

// SetParamsReroute points the entry's path at the endpoint that lists its
// children, or plays it when it has none.
func (e *ListingEntry) SetParamsReroute(ftvForcedLookup string, flattenSeasons bool, extended, cacheOnly string) {
	if e.NextPage {
		return
	}
	switch e.MediaType() {
	case MediaTypeTVShow:
		e.Params["info"] = "seasons"
		if flattenSeasons {
			e.Params["info"] = "flatseasons"
		}
		e.IsFolder = true
	case MediaTypeSeason:
		e.Params["info"] = "episodes"
		e.IsFolder = true
	case MediaTypeMovie, MediaTypeEpisode:
		e.Params["info"] = "play"
		e.IsFolder = false
	case MediaTypeSet:
		e.Params["info"] = "collection"
		e.IsFolder = true
	default:
		return
	}
	if ftvForcedLookup != "" {
		e.Params["fanarttv"] = ftvForcedLookup
	}
	if extended != "" {
		e.Params["extended"] = extended
	}
	if cacheOnly != "" {
		e.Params["cacheonly"] = cacheOnly
	}
}

// SetParamsToInfo mirrors the entry's path params into item.<key> properties.
func (e *ListingEntry) SetParamsToInfo(pluginCategory string) {
	for k, v := range e.Params {
		if k == "" || v == "" {
			continue
		}
		e.InfoProperties["item."+k] = v
	}
	if pluginCategory != "" {
		e.InfoProperties["widget"] = pluginCategory
	}
}

// URL renders the entry path with params in sorted order.
func (e *ListingEntry) URL() string {
	if len(e.Params) == 0 {
		return PluginBase
	}
	keys := make([]string, 0, len(e.Params))
	for k := range e.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(e.Params[k]))
	}
	return PluginBase + "?" + b.String()
}
