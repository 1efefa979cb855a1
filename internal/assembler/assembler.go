// Package assembler builds the ordered content payload for one
// generation attempt: system context first, then imported tickets,
// then uploaded files, then the analysis instruction. A single bad or
// unsupported item is skipped with a warning, never failing the build.
package assembler

import (
	"context"
	"fmt"
	"log"
	"path"
	"strings"
	"time"

	"threatforge/internal/content"
	"threatforge/internal/llmclient"
	"threatforge/internal/storage"
	"threatforge/internal/threatmodel"
)

// urlExpiry bounds how long a resolved asset URL stays fetchable.
const urlExpiry = time.Hour

var textExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".json": true,
	".yaml": true,
	".yml":  true,
	".csv":  true,
	".xml":  true,
	".log":  true,
}

// Result is the assembled payload plus the per-item warnings that were
// absorbed along the way. Warnings are diagnostics only.
type Result struct {
	Blocks   []content.Block
	Warnings []string
}

// Assembler converts a threat model and its context into provider-ready
// content blocks, degrading per item against the provider's
// capabilities.
type Assembler struct {
	resolver storage.Resolver
}

func New(resolver storage.Resolver) *Assembler {
	return &Assembler{resolver: resolver}
}

// BuildContent emits blocks in fixed order: context text, tickets,
// file manifest + converted files, instruction. It never returns an
// error; item failures surface only in Result.Warnings.
func (a *Assembler) BuildContent(
	ctx context.Context,
	tm *threatmodel.ThreatModel,
	files []threatmodel.ContextFile,
	tickets []threatmodel.TicketRecord,
	provider llmclient.Provider,
) Result {
	var res Result

	res.Blocks = append(res.Blocks, content.TextBlock(renderContext(tm)))

	if len(tickets) > 0 {
		res.Blocks = append(res.Blocks, content.TextBlock("## Imported Tickets"))
		for _, ticket := range tickets {
			res.Blocks = append(res.Blocks, content.TextBlock(renderTicket(ticket)))
		}
	}

	if len(files) > 0 {
		res.Blocks = append(res.Blocks, content.TextBlock(renderManifest(files)))
		for _, f := range files {
			block, warn := a.convertFile(ctx, f, provider)
			if warn != "" {
				log.Printf("assembler: threat model %s: %s", tm.ID, warn)
				res.Warnings = append(res.Warnings, warn)
				continue
			}
			res.Blocks = append(res.Blocks, block)
		}
	}

	res.Blocks = append(res.Blocks, content.TextBlock(instructionText))
	return res
}

const instructionText = `Analyze everything above and produce a security threat assessment.
Respond with a single JSON object:
{
  "threats": [
    {
      "title": "...",
      "description": "...",
      "category": "spoofing|tampering|repudiation|information_disclosure|denial_of_service|elevation_of_privilege",
      "likelihood": 1-5,
      "impact": 1-5,
      "affected_components": ["..."],
      "attack_vector": "...",
      "mitigations": [
        {"description": "...", "priority": "immediate|short_term|long_term", "effort": "low|medium|high"}
      ]
    }
  ],
  "summary": "...",
  "recommendations": ["..."]
}`

func renderContext(tm *threatmodel.ThreatModel) string {
	var b strings.Builder
	b.WriteString("# System Under Analysis\n\n")
	fmt.Fprintf(&b, "## Title\n%s\n", tm.Title)
	if tm.Description != "" {
		fmt.Fprintf(&b, "\n## Description\n%s\n", tm.Description)
	}
	if tm.SystemDescription != "" {
		fmt.Fprintf(&b, "\n## System Description\n%s\n", tm.SystemDescription)
	}
	if len(tm.Questions) > 0 {
		b.WriteString("\n## Questionnaire\n")
		for _, qa := range tm.Questions {
			fmt.Fprintf(&b, "\nQ: %s\nA: %s\n", qa.Question, qa.Answer)
		}
	}
	return b.String()
}

func renderManifest(files []threatmodel.ContextFile) string {
	var b strings.Builder
	b.WriteString("## Uploaded Files\n")
	for _, f := range files {
		fmt.Fprintf(&b, "- %s (%s, %s)\n", f.FileName, f.MimeType, f.Tag)
	}
	return b.String()
}

// convertFile maps one file onto a block, or returns a warning when
// the item cannot be represented for the active provider.
func (a *Assembler) convertFile(ctx context.Context, f threatmodel.ContextFile, provider llmclient.Provider) (content.Block, string) {
	mime := strings.ToLower(strings.TrimSpace(f.MimeType))

	if mimeSupported(mime, provider.SupportedImageMimeTypes()) {
		url, err := a.resolver.ResolveURL(ctx, f.StorageKey, urlExpiry)
		if err != nil {
			return content.Block{}, fmt.Sprintf("skipping image %s: %v", f.FileName, err)
		}
		return content.ImageBlock(url, mime), ""
	}

	if mime == "application/pdf" {
		if !provider.SupportsDocumentType() {
			return content.Block{}, fmt.Sprintf("skipping document %s: provider %s does not accept documents", f.FileName, provider.Name())
		}
		url, err := a.resolver.ResolveURL(ctx, f.StorageKey, urlExpiry)
		if err != nil {
			return content.Block{}, fmt.Sprintf("skipping document %s: %v", f.FileName, err)
		}
		return content.DocumentBlock(url, mime, f.FileName), ""
	}

	if isTextual(mime, f.FileName) {
		data, err := a.resolver.ReadBytes(ctx, f.StorageKey)
		if err != nil {
			return content.Block{}, fmt.Sprintf("skipping file %s: %v", f.FileName, err)
		}
		text := fmt.Sprintf("--- File: %s (%s) ---\n%s\n--- End of %s ---", f.FileName, mime, string(data), f.FileName)
		return content.TextBlock(text), ""
	}

	return content.Block{}, fmt.Sprintf("skipping file %s: unsupported type %q", f.FileName, f.MimeType)
}

func isTextual(mime, fileName string) bool {
	if strings.HasPrefix(mime, "text/") || mime == "application/json" {
		return true
	}
	return textExtensions[strings.ToLower(path.Ext(fileName))]
}

func mimeSupported(mime string, supported []string) bool {
	for _, m := range supported {
		if m == mime {
			return true
		}
	}
	return false
}
