package admin

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/darusc/Fileknight/internal/models"
	"github.com/darusc/Fileknight/internal/services"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func userTable(w io.Writer, users []models.User) {
	if len(users) == 0 {
		fmt.Fprintln(w, "No users found.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tROLE\tSTATUS\tID\tCREATED")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", u.Username, u.Role, userStatus(&u), u.ID, relativeTime(u.CreatedAt))
	}
	tw.Flush()
}

func userStatus(u *models.User) string {
	switch {
	case u.ResetRequired:
		return "reset pending"
	case !u.IsRegistered():
		return "unregistered"
	default:
		return "active"
	}
}

// tokenInfo prints a registration token with the instructions to use it.
func tokenInfo(w io.Writer, username string, token *services.OnboardToken) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Username:\t%s\n", username)
	fmt.Fprintf(tw, "Token:\t%s\n", token.Token)
	fmt.Fprintf(tw, "Expires:\t%s (in %s)\n", token.ExpiresAt.Format(time.RFC3339), token.Lifetime)
	tw.Flush()
	fmt.Fprintln(w, "Share the token with the user; it is shown only once.")
}

func usageInfo(w io.Writer, username string, usage *services.Usage) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Username:\t%s\n", username)
	fmt.Fprintf(tw, "Folders:\t%d\n", usage.Directories)
	fmt.Fprintf(tw, "Files:\t%d\n", usage.Files)
	fmt.Fprintf(tw, "Size:\t%s\n", formatSize(usage.Bytes))
	tw.Flush()
}

// formatSize converts bytes to a human-readable string.
func formatSize(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// relativeTime formats a timestamp relative to now (e.g. "2h ago", "3d ago").
func relativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}
