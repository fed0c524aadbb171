package archive

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Paths is the object layout shared by every subsystem.
type Paths struct {
	Channels string
	Videos   string
	Comments string
	BigQuery string
}

// DefaultPaths returns the standard layout.
func DefaultPaths() Paths {
	return Paths{
		Channels: "channels.json",
		Videos:   "videos",
		Comments: "comments",
		BigQuery: "bigquery",
	}
}

func (p Paths) clean() Paths {
	return Paths{
		Channels: strings.Trim(p.Channels, "/"),
		Videos:   strings.Trim(p.Videos, "/"),
		Comments: strings.Trim(p.Comments, "/"),
		BigQuery: strings.Trim(p.BigQuery, "/"),
	}
}

// CatalogObject is videos/{channel}.json.
func (p Paths) CatalogObject(channelID string) string {
	return path.Join(p.clean().Videos, channelID+".json")
}

// CatalogPrefix is the prefix shared by every catalog object.
func (p Paths) CatalogPrefix() string {
	return p.clean().Videos + "/"
}

// CommentsObject is comments/{channel}/{video}.json.
func (p Paths) CommentsObject(channelID, videoID string) string {
	return path.Join(p.clean().Comments, channelID, videoID+".json")
}

// CommentsPrefix is comments/{channel}/, or comments/ when channelID is empty.
func (p Paths) CommentsPrefix(channelID string) string {
	if channelID == "" {
		return p.clean().Comments + "/"
	}
	return path.Join(p.clean().Comments, channelID) + "/"
}

// AnalyticsObject is bigquery/{channel}/{video}.ndjson.
func (p Paths) AnalyticsObject(channelID, videoID string) string {
	return path.Join(p.clean().BigQuery, channelID, videoID+".ndjson")
}

// ParseCatalogObject extracts the channel id from a catalog object name. ok is
// false for names outside the catalog prefix; a name under the prefix that does
// not look like a catalog object is an error.
func (p Paths) ParseCatalogObject(name string) (channelID string, ok bool, err error) {
	prefix := p.CatalogPrefix()
	if !strings.HasPrefix(name, prefix) {
		return "", false, nil
	}
	re := regexp.MustCompile("^" + regexp.QuoteMeta(prefix) + `(.+)\.json$`)
	m := re.FindStringSubmatch(name)
	if m == nil {
		return "", true, fmt.Errorf("cannot parse channel id from %q", name)
	}
	return m[1], true, nil
}

// ParseCommentsObject extracts channel and video ids from a comments object name.
func (p Paths) ParseCommentsObject(name string) (channelID, videoID string, ok bool, err error) {
	prefix := p.CommentsPrefix("")
	if !strings.HasPrefix(name, prefix) {
		return "", "", false, nil
	}
	rest := strings.TrimPrefix(name, prefix)
	dir, file := path.Split(rest)
	dir = strings.TrimSuffix(dir, "/")
	if dir == "" || strings.Contains(dir, "/") || !strings.HasSuffix(file, ".json") || file == ".json" {
		return "", "", true, fmt.Errorf("cannot parse channel and video from %q", name)
	}
	return dir, strings.TrimSuffix(file, ".json"), true, nil
}
