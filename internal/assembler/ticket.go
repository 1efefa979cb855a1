package assembler

import (
	"fmt"
	"sort"
	"strings"

	"threatforge/internal/threatmodel"
)

// renderTicket flattens one imported ticket snapshot into a labeled
// text section: header fields, comments newest-first, linked issues,
// remote links, then an attachment manifest (names and types only).
func renderTicket(t threatmodel.TicketRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### Ticket %s: %s\n", t.Key, t.Title)
	fmt.Fprintf(&b, "Type: %s | Status: %s | Priority: %s\n", t.Type, t.Status, t.Priority)
	if t.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", t.Description)
	}
	if len(t.Labels) > 0 {
		fmt.Fprintf(&b, "\nLabels: %s\n", strings.Join(t.Labels, ", "))
	}
	if t.Reporter != "" || t.Assignee != "" {
		fmt.Fprintf(&b, "Reporter: %s | Assignee: %s\n", t.Reporter, t.Assignee)
	}

	if len(t.Comments) > 0 {
		b.WriteString("\nComments (newest first):\n")
		comments := append([]threatmodel.TicketComment(nil), t.Comments...)
		sort.SliceStable(comments, func(i, j int) bool {
			return comments[i].Created.After(comments[j].Created)
		})
		for _, c := range comments {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", c.Created.Format("2006-01-02"), c.Author, c.Body)
		}
	}

	if len(t.Links) > 0 {
		b.WriteString("\nLinked issues:\n")
		for _, l := range t.Links {
			fmt.Fprintf(&b, "- %s %s: %s\n", l.Relation, l.Key, l.Title)
		}
	}

	if len(t.RemoteLinks) > 0 {
		b.WriteString("\nRemote links:\n")
		for _, url := range t.RemoteLinks {
			fmt.Fprintf(&b, "- %s\n", url)
		}
	}

	if len(t.Attachments) > 0 {
		b.WriteString("\nAttachments:\n")
		for _, a := range t.Attachments {
			fmt.Fprintf(&b, "- %s (%s)\n", a.FileName, a.MimeType)
		}
	}

	return b.String()
}
