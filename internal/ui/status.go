package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/vitrina-search/vitrina/internal/catalog"
)

// StatusRenderer displays a project's feed status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:    out,
		styles: GetStyles(noColor),
	}
}

// Render displays the feed status as a text block.
func (r *StatusRenderer) Render(projectID string, st catalog.FeedStatus) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Feed Status: "+projectID))

	_, _ = fmt.Fprintf(r.out, "  Status:     %s\n", r.renderState(st.Status))
	if st.ShopName != "" {
		_, _ = fmt.Fprintf(r.out, "  Shop:       %s\n", st.ShopName)
	}
	if st.Status == catalog.StatusDownloading || st.Status == catalog.StatusIndexing {
		_, _ = fmt.Fprintf(r.out, "  Progress:   %d%%\n", st.Progress)
	}
	if st.Message != "" {
		_, _ = fmt.Fprintf(r.out, "  Message:    %s\n", st.Message)
	}
	_, _ = fmt.Fprintf(r.out, "  Products:   %d\n", st.ProductsCount)
	_, _ = fmt.Fprintf(r.out, "  Categories: %d\n", st.CategoriesCount)
	if st.LastUpdate != "" {
		_, _ = fmt.Fprintf(r.out, "  Updated:    %s\n", formatLastUpdate(st.LastUpdate))
	}
	if st.URL != "" {
		_, _ = fmt.Fprintf(r.out, "  URL:        %s\n", st.URL)
	}
	if st.Error != "" {
		_, _ = fmt.Fprintf(r.out, "  Error:      %s\n", r.styles.Error.Render(st.Error))
	}

	return nil
}

// RenderJSON outputs the status as indented JSON.
func (r *StatusRenderer) RenderJSON(st catalog.FeedStatus) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(st)
}

// renderState colors a status value.
func (r *StatusRenderer) renderState(status string) string {
	switch status {
	case catalog.StatusSuccess:
		return r.styles.Success.Render(status)
	case catalog.StatusDownloading, catalog.StatusIndexing:
		return r.styles.Warning.Render(status)
	case catalog.StatusError:
		return r.styles.Error.Render(status)
	default:
		return r.styles.Dim.Render(status)
	}
}

// formatLastUpdate renders an RFC3339 stamp as a relative age. A value
// that does not parse is shown verbatim.
func formatLastUpdate(stamp string) string {
	t, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return stamp
	}
	return relativeTime(t)
}

// relativeTime formats a time as a human age.
func relativeTime(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}
