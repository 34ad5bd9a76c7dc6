package tracker

import "fmt"

// FormatThreadMarker returns the synthetic correlation token embedded
// in the References/In-Reply-To headers of outbound notification mail:
// <thread-<task_id>@<domain>>. The resolver recognizes this exact form,
// so the format must stay wire-compatible across releases.
func FormatThreadMarker(taskID int64, domain string) string {
	return fmt.Sprintf("<thread-%d@%s>", taskID, domain)
}
